package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/racephotos/bibfinder/internal/logger"
)

const requestIDKey = "request_id"

// requestIDMiddleware assigns every request a uuid, echoes it in the
// X-Request-ID header and attaches it to the request context as the trace id.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id := ctx.Request().Header.Get(echo.HeaderXRequestID)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			ctx.Set(requestIDKey, id)
			ctx.Response().Header().Set(echo.HeaderXRequestID, id)
			ctx.SetRequest(ctx.Request().WithContext(logger.WithTraceID(ctx.Request().Context(), id)))
			return next(ctx)
		}
	}
}

func requestID(ctx echo.Context) string {
	id, _ := ctx.Get(requestIDKey).(string)
	return id
}

// requestLogger logs one line per request through the api module logger.
func requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			GetLogger().WithContext(c.Request().Context()).Info("request", fields...)
			return nil
		},
	})
}

// metricsMiddleware records request counts and latency by route pattern.
func (s *Server) metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if s.metrics == nil {
				return next(ctx)
			}
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			s.metrics.HTTP.RecordHTTPRequest(ctx.Request().Method, path, status, time.Since(start))
			return err
		}
	}
}
