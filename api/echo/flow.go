package oauthecho

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-oauth/domain"
)

// loadFlow returns the flow named by the flow cookie, or nil when there is
// none.
func (oa *OAuth2API) loadFlow(c echo.Context) (*domain.FlowState, error) {
	cookie, err := c.Cookie(oa.cfg.FlowCookie)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	flow, err := oa.Flows.GetFlow(c.Request().Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}

	return flow, nil
}

// loadPendingFlow returns the flow together with the authorization request
// it points at. Both are nil when either is missing.
func (oa *OAuth2API) loadPendingFlow(c echo.Context) (*domain.FlowState, *domain.AuthCode, error) {
	flow, err := oa.loadFlow(c)
	if err != nil || flow == nil || flow.AuthCodeID == "" {
		return nil, nil, err
	}

	code, err := oa.Authorization.Get(c.Request().Context(), flow.AuthCodeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load authorization request: %w", err)
	}

	return flow, code, nil
}

func newFlow() *domain.FlowState {
	return &domain.FlowState{ID: uuid.NewString()}
}

// saveFlow stores the flow and (re)sets the flow cookie.
func (oa *OAuth2API) saveFlow(c echo.Context, flow *domain.FlowState) error {
	if err := oa.Flows.SaveFlow(c.Request().Context(), flow, oa.cfg.FlowTTL); err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}

	c.SetCookie(&http.Cookie{
		Name:     oa.cfg.FlowCookie,
		Value:    flow.ID,
		Path:     oa.cfg.BasePath,
		MaxAge:   int(oa.cfg.FlowTTL.Seconds()),
		HttpOnly: true,
		Secure:   oa.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}
