package oauthecho

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-oauth/api"
	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/federation"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	errDescFlowMissing     = "Authorization code instance not found."
	errDescCorruptRequest  = "Request denied. Data is corrupt."
	errDescBadCredentials  = "Given credentials are not valid or do not match any record."
	errDescTooManyAttempts = "Too many login attempts. Try again later."
)

// AuthorizeHandler records an authorization request and sends the user
// agent on to the login dialog, to a federated strategy (?strategy=id), or
// straight back to the client when the flow already carries a logged in
// subject.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	ctx := c.Request().Context()

	req := &client.AuthorizationRequest{
		ResponseType:        c.QueryParam("response_type"),
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		Scope:               c.QueryParam("scope"),
		State:               c.QueryParam("state"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
		UserAgent:           c.Request().UserAgent(),
	}

	code, err := oa.Authorization.Start(ctx, req)
	if err != nil {
		return oa.renderError(c, err)
	}

	flow, err := oa.loadFlow(c)
	if err != nil {
		return oa.renderError(c, serrors.NewRedirectError(
			serrors.NewServerError(serrors.ServerErrorDescription).WithState(code.State), code.RedirectURI))
	}
	if flow == nil {
		flow = newFlow()
	}
	flow.AuthCodeID = code.ID
	flow.Error = ""
	flow.StrategyID, flow.StrategyState, flow.StrategyVerifier = "", "", ""

	if err := oa.saveFlow(c, flow); err != nil {
		log.Error().Err(err).Str("client_id", code.ClientID).Msg("failed to save flow")
		return oa.renderError(c, serrors.NewRedirectError(
			serrors.NewServerError(serrors.ServerErrorDescription).WithState(code.State), code.RedirectURI))
	}

	if strategy := c.QueryParam("strategy"); strategy != "" {
		return c.Redirect(http.StatusTemporaryRedirect, oa.strategyPath(strategy))
	}

	if flow.Subject != nil {
		return oa.complete(c, flow, code)
	}

	return c.Redirect(http.StatusTemporaryRedirect, oa.path(PathDialog))
}

// DialogHandler describes the pending authorization request as JSON for the
// login page. ?order=cancel denies the request.
func (oa *OAuth2API) DialogHandler(c echo.Context) error {
	flow, code, err := oa.loadPendingFlow(c)
	if err != nil {
		return oa.renderError(c, err)
	}
	if code == nil {
		return oa.renderError(c, serrors.NewServerError(errDescFlowMissing))
	}

	if c.QueryParam("order") == "cancel" {
		flow.Error = ""
		if err := oa.saveFlow(c, flow); err != nil {
			log.Warn().Err(err).Msg("failed to clear flow error")
		}

		result, err := oa.Authorization.Deny(c.Request().Context(), code.ID)
		if err != nil {
			return oa.renderError(c, err)
		}
		return c.Redirect(http.StatusFound, result.Location)
	}

	cl, err := oa.Clients.Get(c.Request().Context(), code.ClientID)
	if err != nil {
		return oa.renderError(c, err)
	}

	dialog := api.Dialog{
		ProviderName: oa.OAuthContext.ProviderName,
		FormAction:   oa.path(PathAuthorizeSubmit),
		CancelURL:    oa.path(PathDialog) + "?order=cancel",
		Scope:        code.Scope,
		Error:        flow.Error,
		Client:       api.NewDialogClient(cl),
		Strategies:   []federation.Option{},
	}
	if oa.Bridge != nil {
		dialog.Strategies = oa.Bridge.Options(oa.strategyPath)
	}

	return c.JSON(http.StatusOK, dialog)
}

// LoginHandler authenticates the end-user from the dialog form.
func (oa *OAuth2API) LoginHandler(c echo.Context) error {
	ctx := c.Request().Context()

	flow, code, err := oa.loadPendingFlow(c)
	if err != nil {
		return oa.renderError(c, err)
	}
	if code == nil {
		return oa.renderError(c, serrors.NewAccessDenied(errDescCorruptRequest))
	}

	if oa.Throttle != nil && !oa.Throttle.Allow(c.RealIP()) {
		return oa.backToDialog(c, flow, errDescTooManyAttempts)
	}

	username, password := c.FormValue("username"), c.FormValue("password")

	var missing []string
	if username == "" {
		missing = append(missing, "username")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		verb := "is"
		if len(missing) > 1 {
			verb = "are"
		}
		return oa.backToDialog(c, flow, fmt.Sprintf("%s %s required.", strings.Join(missing, ", "), verb))
	}

	subject, err := oa.Authenticate(ctx, username, password)
	if err != nil {
		log.Error().Err(err).Str("client_id", code.ClientID).Msg("authentication callback failed")
		return oa.renderError(c, serrors.NewRedirectError(
			serrors.NewServerError(serrors.ServerErrorDescription).WithState(code.State), code.RedirectURI))
	}
	if subject == nil {
		metrics.LoginFailureTotal.Inc()
		audit.Log(audit.Event{
			Action:   audit.ActionLoginFailed,
			ClientID: code.ClientID,
			Subject:  username,
			Details:  "remote_addr=" + c.RealIP(),
		})
		return oa.backToDialog(c, flow, errDescBadCredentials)
	}

	flow.Subject = subject
	flow.Error = ""

	return oa.complete(c, flow, code)
}

func (oa *OAuth2API) backToDialog(c echo.Context, flow *domain.FlowState, message string) error {
	flow.Error = message
	if err := oa.saveFlow(c, flow); err != nil {
		return oa.renderError(c, err)
	}

	return c.Redirect(http.StatusSeeOther, oa.path(PathDialog))
}

// complete binds the flow subject to the authorization request and
// redirects to the client.
func (oa *OAuth2API) complete(c echo.Context, flow *domain.FlowState, code *domain.AuthCode) error {
	if err := oa.saveFlow(c, flow); err != nil {
		log.Warn().Err(err).Str("flow_id", flow.ID).Msg("failed to keep login on flow")
	}

	result, err := oa.Authorization.Complete(c.Request().Context(), code.ID, flow.Subject)
	if err != nil {
		var oerr *serrors.OAuth2Error
		if !errors.As(err, &oerr) {
			log.Error().Err(err).Str("auth_code_id", code.ID).Msg("failed to complete authorization request")
			err = serrors.NewRedirectError(
				serrors.NewServerError(serrors.ServerErrorDescription).WithState(code.State), code.RedirectURI)
		}
		return oa.renderError(c, err)
	}

	return c.Redirect(http.StatusFound, result.Location)
}

// StrategyRedirectHandler starts a federated login.
func (oa *OAuth2API) StrategyRedirectHandler(c echo.Context) error {
	id := c.Param("identifier")

	flow, code, err := oa.loadPendingFlow(c)
	if err != nil {
		return oa.renderError(c, err)
	}
	if code == nil {
		return oa.renderError(c, serrors.NewAccessDenied(errDescFlowMissing))
	}

	if oa.Bridge == nil {
		return oa.renderError(c, serrors.NewRedirectError(
			serrors.NewAccessDenied(fmt.Sprintf("OAuth strategy %s not found.", id)).WithState(code.State),
			code.RedirectURI))
	}

	state := federation.NewState()
	location, verifier, err := oa.Bridge.BuildRedirectURI(id, state)
	if err != nil {
		return oa.renderError(c, oa.toClient(code, err))
	}

	flow.StrategyID, flow.StrategyState, flow.StrategyVerifier = id, state, verifier
	if err := oa.saveFlow(c, flow); err != nil {
		return oa.renderError(c, oa.toClient(code, err))
	}

	return c.Redirect(http.StatusTemporaryRedirect, location)
}

// StrategyCallbackHandler finishes a federated login and completes the
// authorization request with the subject found.
func (oa *OAuth2API) StrategyCallbackHandler(c echo.Context) error {
	id := c.Param("identifier")

	flow, code, err := oa.loadPendingFlow(c)
	if err != nil {
		return oa.renderError(c, err)
	}
	if code == nil {
		return oa.renderError(c, serrors.NewAccessDenied(errDescFlowMissing))
	}
	if oa.Bridge == nil || flow.StrategyID != id {
		return oa.renderError(c, serrors.NewRedirectError(
			serrors.NewAccessDenied(fmt.Sprintf("OAuth strategy %s not found.", id)).WithState(code.State),
			code.RedirectURI))
	}

	state, verifier := flow.StrategyState, flow.StrategyVerifier
	flow.StrategyID, flow.StrategyState, flow.StrategyVerifier = "", "", ""

	subject, err := oa.Bridge.Login(c.Request().Context(), id, c.QueryParams(), state, verifier)
	if err != nil {
		if serr := oa.saveFlow(c, flow); serr != nil {
			log.Warn().Err(serr).Str("flow_id", flow.ID).Msg("failed to clear strategy state")
		}
		return oa.renderError(c, oa.toClient(code, err))
	}

	flow.Subject = subject

	return oa.complete(c, flow, code)
}

// toClient turns err into a redirect error for the client of code.
func (oa *OAuth2API) toClient(code *domain.AuthCode, err error) error {
	oerr, ok := serrors.AsOAuth2Error(err)
	if !ok {
		log.Error().Err(err).Str("auth_code_id", code.ID).Msg("federated login failed")
	}

	return serrors.NewRedirectError(oerr.WithState(code.State), code.RedirectURI)
}
