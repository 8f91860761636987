package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"survey-backend/internal/engine"
	"survey-backend/internal/instrument"
	"survey-backend/internal/metadata"
)

// AuthMiddleware requires a bearer access token and stores its user in the
// "user" local.
func AuthMiddleware(tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		switch {
		case scheme == "":
			return engine.UnauthorizedError("Missing auth token")
		case !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "":
			return engine.UnauthorizedError("Invalid auth header format")
		}

		user, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}
		c.Locals("user", user)
		c.SetUserContext(instrument.WithUserID(c.UserContext(), user.ID))
		return c.Next()
	}
}

// RequireRole lets the request through when the user holds one of roles.
// Admins always pass.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := engine.CheckRole(GetUser(c), roles...); err != nil {
			return err
		}
		return c.Next()
	}
}

func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}
