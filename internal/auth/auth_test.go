package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-backend/internal/engine"
	"survey-backend/internal/instrument"
	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

const testSecret = "test-secret"

type memUsers struct {
	users  map[string]*store.User
	tokens map[string]*store.RefreshToken // keyed by token
}

func newMemUsers(t *testing.T) *memUsers {
	t.Helper()
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	return &memUsers{
		users: map[string]*store.User{
			"kim@stat.local": {ID: "u1", Email: "kim@stat.local", PasswordHash: hash,
				Roles: []string{metadata.RoleCollector}, Areas: []string{"11010"}, Active: true},
			"old@stat.local": {ID: "u2", Email: "old@stat.local", PasswordHash: hash, Active: false},
		},
		tokens: map[string]*store.RefreshToken{},
	}
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*store.User, error) {
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (m *memUsers) FindRefreshToken(_ context.Context, token string) (*store.RefreshToken, error) {
	if rt, ok := m.tokens[token]; ok {
		return rt, nil
	}
	return nil, store.ErrNotFound
}

func (m *memUsers) CreateRefreshToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	for _, u := range m.users {
		if u.ID == userID {
			m.tokens[token] = &store.RefreshToken{ID: "rt-" + token, UserID: userID, ExpiresAt: expiresAt,
				Roles: u.Roles, Areas: u.Areas, Active: u.Active}
			return nil
		}
	}
	return errors.New("unknown user")
}

func (m *memUsers) DeleteRefreshToken(_ context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}

func (m *memUsers) DeleteRefreshTokenByID(_ context.Context, id string) error {
	for tok, rt := range m.tokens {
		if rt.ID == id {
			delete(m.tokens, tok)
		}
	}
	return nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	var appErr *engine.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func newApp(users UserStore) *fiber.App {
	tokens := NewTokens(testSecret)
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	RegisterAuthRoutes(app, NewAuthHandler(users, tokens, nil), AuthMiddleware(tokens))
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return resp.StatusCode, out
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens(testSecret)
	tok, err := tokens.Access(&metadata.UserContext{ID: "u1", Roles: []string{"collector"}, Areas: []string{"11", "26"}})
	require.NoError(t, err)

	user, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, []string{"collector"}, user.Roles)
	assert.Equal(t, []string{"11", "26"}, user.Areas)

	_, err = NewTokens("other-secret").Parse(tok)
	assert.Error(t, err)
}

func TestTokens_Expired(t *testing.T) {
	tokens := NewTokens(testSecret)
	tokens.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := tokens.Access(&metadata.UserContext{ID: "u1"})
	require.NoError(t, err)

	_, err = NewTokens(testSecret).Parse(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokens_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokens(testSecret).Parse(tok)
	assert.Error(t, err)
}

func TestTokens_Refresh(t *testing.T) {
	tokens := NewTokens(testSecret)
	a, exp := tokens.Refresh()
	b, _ := tokens.Refresh()
	assert.NotEqual(t, a, b)
	assert.WithinDuration(t, time.Now().Add(RefreshTokenTTL), exp, time.Minute)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.True(t, CheckPassword("pw", hash))
	assert.False(t, CheckPassword("nope", hash))
}

func TestLogin(t *testing.T) {
	users := newMemUsers(t)
	app := newApp(users)

	status, body := call(t, app, http.MethodPost, "/api/auth/login", "", `{"email":"kim@stat.local","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	access := data["access_token"].(string)
	assert.Equal(t, float64(900), data["expires_in"])
	assert.NotEmpty(t, data["refresh_token"])
	assert.Len(t, users.tokens, 1)

	status, body = call(t, app, http.MethodGet, "/api/auth/me", access, "")
	require.Equal(t, http.StatusOK, status)
	me := body["data"].(map[string]any)
	assert.Equal(t, "u1", me["id"])
	assert.Equal(t, []any{"11010"}, me["areas"])
}

func TestLogin_Rejections(t *testing.T) {
	app := newApp(newMemUsers(t))
	cases := map[string]string{
		"wrong password": `{"email":"kim@stat.local","password":"guess"}`,
		"unknown user":   `{"email":"nobody@stat.local","password":"s3cret"}`,
		"disabled":       `{"email":"old@stat.local","password":"s3cret"}`,
		"missing fields": `{"email":"kim@stat.local"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			status, body := call(t, app, http.MethodPost, "/api/auth/login", "", payload)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])
		})
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	users := newMemUsers(t)
	app := newApp(users)

	_, body := call(t, app, http.MethodPost, "/api/auth/login", "", `{"email":"kim@stat.local","password":"s3cret"}`)
	first := body["data"].(map[string]any)["refresh_token"].(string)

	status, body := call(t, app, http.MethodPost, "/api/auth/refresh", "", `{"refresh_token":"`+first+`"}`)
	require.Equal(t, http.StatusOK, status)
	second := body["data"].(map[string]any)["refresh_token"].(string)
	assert.NotEqual(t, first, second)
	assert.NotContains(t, users.tokens, first)
	assert.Contains(t, users.tokens, second)

	status, _ = call(t, app, http.MethodPost, "/api/auth/refresh", "", `{"refresh_token":"`+first+`"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRefresh_Expired(t *testing.T) {
	users := newMemUsers(t)
	users.tokens["stale"] = &store.RefreshToken{ID: "rt-stale", UserID: "u1", ExpiresAt: time.Now().Add(-time.Minute), Active: true}
	app := newApp(users)

	status, body := call(t, app, http.MethodPost, "/api/auth/refresh", "", `{"refresh_token":"stale"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Refresh token expired", body["error"].(map[string]any)["message"])
	assert.NotContains(t, users.tokens, "stale")
}

func TestLogout(t *testing.T) {
	users := newMemUsers(t)
	users.tokens["tok"] = &store.RefreshToken{ID: "rt-tok", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour), Active: true}
	app := newApp(users)

	status, _ := call(t, app, http.MethodPost, "/api/auth/logout", "", `{"refresh_token":"tok"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, users.tokens)
}

func TestAuthMiddleware(t *testing.T) {
	app := newApp(newMemUsers(t))

	status, _ := call(t, app, http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, app, http.MethodGet, "/api/auth/me", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthMiddleware_SetsContextUser(t *testing.T) {
	tokens := NewTokens(testSecret)
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Get("/whoami", AuthMiddleware(tokens), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": instrument.GetUserID(c.UserContext())})
	})

	tok, err := tokens.Access(&metadata.UserContext{ID: "u7"})
	require.NoError(t, err)
	status, body := call(t, app, http.MethodGet, "/whoami", tok, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u7", body["user_id"])
}

func TestRequireRole(t *testing.T) {
	tokens := NewTokens(testSecret)
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Get("/design", AuthMiddleware(tokens), RequireRole(metadata.RoleManager), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	token := func(roles ...string) string {
		tok, err := tokens.Access(&metadata.UserContext{ID: "u", Roles: roles})
		require.NoError(t, err)
		return tok
	}

	status, _ := call(t, app, http.MethodGet, "/design", token(metadata.RoleCollector), "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, app, http.MethodGet, "/design", token(metadata.RoleManager), "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, app, http.MethodGet, "/design", token(metadata.RoleAdmin), "")
	assert.Equal(t, http.StatusOK, status)
}
