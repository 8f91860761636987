package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"survey-backend/internal/engine"
	"survey-backend/internal/logger"
	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

// UserStore is the account storage the auth endpoints need.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*store.User, error)
	FindRefreshToken(ctx context.Context, token string) (*store.RefreshToken, error)
	CreateRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteRefreshTokenByID(ctx context.Context, id string) error
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	users  UserStore
	tokens *Tokens
	log    *logger.Logger
}

func NewAuthHandler(users UserStore, tokens *Tokens, log *logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthHandler{users: users, tokens: tokens, log: log}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.BadRequestError("Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.UserContext()
	user, err := h.users.FindByEmail(ctx, body.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return engine.UnauthorizedError("Invalid email or password")
	}
	if !user.Active {
		return engine.UnauthorizedError("Account is disabled")
	}
	if !CheckPassword(body.Password, user.PasswordHash) {
		h.log.Warn("login failed", "email", body.Email)
		return engine.UnauthorizedError("Invalid email or password")
	}

	pair, err := h.issue(ctx, &metadata.UserContext{ID: user.ID, Roles: user.Roles, Areas: user.Areas})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. The used refresh token is
// rotated out.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.BadRequestError("Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.UserContext()
	rt, err := h.users.FindRefreshToken(ctx, body.RefreshToken)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return engine.UnauthorizedError("Invalid refresh token")
	}

	if h.tokens.now().After(rt.ExpiresAt) {
		_ = h.users.DeleteRefreshToken(ctx, body.RefreshToken)
		return engine.UnauthorizedError("Refresh token expired")
	}
	if !rt.Active {
		return engine.UnauthorizedError("Account is disabled")
	}

	if err := h.users.DeleteRefreshTokenByID(ctx, rt.ID); err != nil {
		h.log.Error("refresh token rotation failed", "token_id", rt.ID, "error", err)
	}

	pair, err := h.issue(ctx, &metadata.UserContext{ID: rt.UserID, Roles: rt.Roles, Areas: rt.Areas})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.BadRequestError("Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	_ = h.users.DeleteRefreshToken(c.UserContext(), body.RefreshToken)
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return engine.UnauthorizedError("Missing auth token")
	}
	return c.JSON(fiber.Map{"data": user})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app. The
// middleware guards /me only.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler, middleware ...fiber.Handler) {
	auth := app.Group("/api/auth")
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.Logout)
	auth.Get("/me", append(middleware, h.Me)...)
}

func (h *AuthHandler) issue(ctx context.Context, user *metadata.UserContext) (*TokenPair, error) {
	access, err := h.tokens.Access(user)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refresh, expiresAt := h.tokens.Refresh()
	if err := h.users.CreateRefreshToken(ctx, user.ID, refresh, expiresAt); err != nil {
		h.log.Error("store refresh token", "user_id", user.ID, "error", err)
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}
	return h.tokens.pair(access, refresh), nil
}
