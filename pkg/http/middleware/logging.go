package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "FinChart/pkg/logger"
)

// RequestLogging logs one line per request. Handler errors are written
// through echo's error handler first so the logged status is the one sent.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			res := c.Response()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Int64("bytes", res.Size),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, applogger.Error(err))
			}
			if res.Status >= 500 {
				l.Warn("http request", fields...)
			} else {
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
