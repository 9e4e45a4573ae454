package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	principalKey = "principal"
	metricsKey   = "metrics"
)

// sessionOrigin tags the request context with the caller's session id.
func sessionOrigin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if sid := c.Request().Header.Get(SessionHeader); sid != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(domain.WithOrigin(req.Context(), sid)))
			}
			return next(c)
		}
	}
}

// requireAuth rejects requests without a valid bearer token.
func requireAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			p, err := auth.PrincipalFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			m := metricsFrom(c)
			m.ObserveAuth(time.Since(start))
			if err != nil {
				m.SetErrorStage("auth")
				return c.JSON(http.StatusUnauthorized, errorResponse{Message: err.Error()})
			}
			c.Set(principalKey, p)
			return next(c)
		}
	}
}

// mutationMetrics wraps a mutating route with a span and one metrics entry.
func mutationMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			m, ctx := newRequestMetrics(c.Request().Context(), logger, c.Request().Method, c.Path())
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(metricsKey, m)
			defer func() {
				status := c.Response().Status
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
				m.Log(status, err)
			}()
			return next(c)
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsKey).(*requestMetrics)
	return m
}

func principal(c echo.Context) domain.Principal {
	p, _ := c.Get(principalKey).(domain.Principal)
	return p
}

// decodeBody reads a bounded JSON body, rejecting unknown fields.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Message: "invalid body"}
	}
	return nil
}

// fail writes err as a JSON error response with the status its kind maps to.
func fail(c echo.Context, err error) error {
	m := metricsFrom(c)
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		m.SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorResponse{Message: ve.Message, Field: ve.Field})
	case errors.Is(err, domain.ErrValidation):
		m.SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		m.SetErrorStage("not_found")
		return c.JSON(http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		m.SetErrorStage("forbidden")
		return c.JSON(http.StatusForbidden, errorResponse{Message: "access denied"})
	}
	m.SetErrorStage("service")
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Message: "internal server error"})
}
