package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arishrdi/leads-aladdin-sub001/core/policy"
)

// allowMiddleware rejects requests whose actor does not satisfy rule.
func allowMiddleware(rule func(policy.Actor) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getActor(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context actor")
			}
			if rule(actor) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return allowMiddleware(policy.ManageUsers)
}
