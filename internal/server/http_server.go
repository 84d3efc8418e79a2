// Package server assembles the HTTP server in front of the OAuth endpoints.
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	oauthecho "github.com/pilab-dev/shadow-oauth/api/echo"
	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/tracing"
)

// NewEcho builds the echo instance serving oauthAPI. tracingEnabled adds a
// server span per request.
func NewEcho(appLogger log.Logger, oauthAPI *oauthecho.OAuth2API, tracingEnabled bool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	if tracingEnabled {
		e.Use(tracing.Middleware())
	}
	e.Use(RequestLogger(appLogger))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	oauthAPI.RegisterRoutes(e)

	return e
}

// RequestLogger logs one line per request.
func RequestLogger(appLogger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := log.Fields{
				"method":     req.Method,
				"path":       req.URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": req.UserAgent(),
			}

			switch {
			case err != nil:
				appLogger.Error(req.Context(), "HTTP request failed", err, fields)
			case c.Response().Status >= http.StatusInternalServerError:
				appLogger.Warn(req.Context(), "HTTP request", fields)
			default:
				appLogger.Info(req.Context(), "HTTP request", fields)
			}

			return nil
		}
	}
}

// NewHTTPServer wraps handler in an http.Server listening on cfg.Address.
func NewHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
