package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(ctx context.Context, bearer string, opts services.VerifyOptions) *services.VerifyResult {
	args := m.Called(ctx, bearer, opts)
	return args.Get(0).(*services.VerifyResult)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		target      string
		wantToken   string
		wantPresent bool
	}{
		{name: "bearer header", header: "Bearer abc.def", target: "/", wantToken: "abc.def", wantPresent: true},
		{name: "case insensitive scheme", header: "bearer abc", target: "/", wantToken: "abc", wantPresent: true},
		{name: "basic scheme", header: "Basic Zm9vOmJhcg==", target: "/", wantPresent: true},
		{name: "empty bearer", header: "Bearer ", target: "/", wantPresent: true},
		{name: "query parameter", target: "/?access_token=q1", wantToken: "q1", wantPresent: true},
		{name: "nothing", target: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}

			token, present := BearerToken(req)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantPresent, present)
		})
	}
}

func serve(t *testing.T, mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, *services.VerifyResult) {
	t.Helper()

	var seen *services.VerifyResult
	e := echo.New()
	e.GET("/resource", func(c echo.Context) error {
		seen, _ = FromContext(c)
		return c.String(http.StatusOK, "ok")
	}, mw)

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec, seen
}

func TestAuthorize(t *testing.T) {
	accepted := &services.VerifyResult{
		TokenID:   "jti-1",
		Subject:   "user-alice",
		ClientID:  "client-1",
		Grant:     domain.GrantAuthorizationCode,
		Scope:     "read write",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	opts := services.VerifyOptions{Scope: "read"}

	testCases := []struct {
		name          string
		header        string
		mockSetup     func(m *MockTokenVerifier)
		wantStatus    int
		wantError     string
		wantChallenge string
	}{
		{
			name:   "accepted",
			header: "Bearer good",
			mockSetup: func(m *MockTokenVerifier) {
				m.On("Verify", mock.Anything, "good", opts).Return(accepted).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:          "missing token",
			mockSetup:     func(m *MockTokenVerifier) {},
			wantStatus:    http.StatusUnauthorized,
			wantError:     serrors.InvalidToken,
			wantChallenge: `Bearer realm="api", error="invalid_token", error_description="Invalid access token"`,
		},
		{
			name:   "expired",
			header: "Bearer old",
			mockSetup: func(m *MockTokenVerifier) {
				m.On("Verify", mock.Anything, "old", opts).
					Return(&services.VerifyResult{Err: serrors.NewInvalidToken(services.ErrDescTokenExpired)}).Once()
			},
			wantStatus:    http.StatusUnauthorized,
			wantError:     serrors.InvalidToken,
			wantChallenge: `Bearer realm="api", error="invalid_token", error_description="Access Token expired"`,
		},
		{
			name:   "insufficient scope",
			header: "Bearer narrow",
			mockSetup: func(m *MockTokenVerifier) {
				m.On("Verify", mock.Anything, "narrow", opts).
					Return(&services.VerifyResult{Err: serrors.NewInsufficientScope("read")}).Once()
			},
			wantStatus:    http.StatusForbidden,
			wantError:     serrors.InsufficientScope,
			wantChallenge: `Bearer realm="api", error="insufficient_scope", error_description="Insufficient scope", scope="read"`,
		},
		{
			name:   "grant filter",
			header: "Bearer machine",
			mockSetup: func(m *MockTokenVerifier) {
				m.On("Verify", mock.Anything, "machine", opts).
					Return(&services.VerifyResult{Err: serrors.NewAccessDenied(`Only "authorization_code" grant is allowed`)}).Once()
			},
			wantStatus: http.StatusForbidden,
			wantError:  serrors.AccessDenied,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := new(MockTokenVerifier)
			tc.mockSetup(verifier)

			rec, seen := serve(t, NewAuthenticator(verifier, "").Authorize(opts), tc.header)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantChallenge, rec.Header().Get(echo.HeaderWWWAuthenticate))
			if tc.wantError == "" {
				assert.Same(t, accepted, seen)
			} else {
				assert.Nil(t, seen)

				var body serrors.OAuth2Error
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tc.wantError, body.Code)
			}

			verifier.AssertExpectations(t)
		})
	}
}

func TestOptionalAuthorize(t *testing.T) {
	verifier := new(MockTokenVerifier)
	authn := NewAuthenticator(verifier, "resources")

	rec, seen := serve(t, authn.OptionalAuthorize(services.VerifyOptions{}), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, seen)

	verifier.On("Verify", mock.Anything, "bad", services.VerifyOptions{}).
		Return(&services.VerifyResult{Err: serrors.NewInvalidToken(services.ErrDescInvalidToken)}).Once()

	rec, _ = serve(t, authn.OptionalAuthorize(services.VerifyOptions{}), "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderWWWAuthenticate), `realm="resources"`)

	verifier.AssertExpectations(t)
}
