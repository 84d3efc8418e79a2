package middleware

import (
	"github.com/labstack/echo/v4"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/rs/zerolog/log"
)

// Authorize rejects requests without a valid bearer token matching opts.
func (a *Authenticator) Authorize(opts services.VerifyOptions) echo.MiddlewareFunc {
	return a.guard(opts, false)
}

// OptionalAuthorize lets requests without any token through unauthenticated.
// A token that is present must still be valid.
func (a *Authenticator) OptionalAuthorize(opts services.VerifyOptions) echo.MiddlewareFunc {
	return a.guard(opts, true)
}

func (a *Authenticator) guard(opts services.VerifyOptions, optional bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			bearer, present := BearerToken(c.Request())
			if !present && optional {
				return next(c)
			}
			if bearer == "" {
				return a.reject(c, serrors.NewInvalidToken(services.ErrDescInvalidToken))
			}

			result := a.verifier.Verify(c.Request().Context(), bearer, opts)
			if !result.OK() {
				return a.reject(c, result.Err)
			}

			c.Set(resultContextKey, result)
			return next(c)
		}
	}
}

func (a *Authenticator) reject(c echo.Context, oerr *serrors.OAuth2Error) error {
	log.Debug().
		Str("path", c.Path()).
		Str("error", oerr.Code).
		Str("error_description", oerr.Description).
		Msg("bearer token rejected")

	if oerr.Code == serrors.InvalidToken || oerr.Code == serrors.InsufficientScope {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, oerr.Challenge("Bearer", a.realm))
	}

	return c.JSON(oerr.Status(), oerr)
}
