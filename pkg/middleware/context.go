package middleware

import (
	"github.com/evanramirez88/resolve/pkg/reqcontext"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderActor identifies the operator making the request. Review decisions and
// manual merges are attributed to this value.
const HeaderActor = "X-Actor"

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			actor := req.Header.Get(HeaderActor)

			ctx := req.Context()
			ctx = reqcontext.SetRequestID(ctx, requestID)
			ctx = reqcontext.SetRoute(ctx, req.URL.Path)
			ctx = reqcontext.SetRemoteIP(ctx, c.RealIP())
			ctx = reqcontext.SetActor(ctx, actor)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
