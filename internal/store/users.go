package store

import (
	"context"
	"time"
)

// User is an account as seen by authentication.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	Areas        []string
	Active       bool
}

// RefreshToken is a stored refresh token joined with its owner.
type RefreshToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	Roles     []string
	Areas     []string
	Active    bool
}

// Users implements the account lookups of the auth handler on Postgres.
type Users struct {
	q Querier
}

func NewUsers(q Querier) *Users {
	return &Users{q: q}
}

func (u *Users) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.q.QueryRow(ctx, SQL("find-user-by-email"), email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Roles, &user.Areas, &user.Active)
	if err != nil {
		return nil, MapError(err)
	}
	return &user, nil
}

func (u *Users) FindRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	var rt RefreshToken
	err := u.q.QueryRow(ctx, SQL("find-refresh-token"), token).
		Scan(&rt.ID, &rt.UserID, &rt.ExpiresAt, &rt.Roles, &rt.Areas, &rt.Active)
	if err != nil {
		return nil, MapError(err)
	}
	return &rt, nil
}

func (u *Users) CreateRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := Exec(ctx, u.q, SQL("create-refresh-token"), userID, token, expiresAt)
	return err
}

func (u *Users) DeleteRefreshToken(ctx context.Context, token string) error {
	_, err := Exec(ctx, u.q, SQL("delete-refresh-token"), token)
	return err
}

func (u *Users) DeleteRefreshTokenByID(ctx context.Context, id string) error {
	_, err := Exec(ctx, u.q, SQL("delete-refresh-token-by-id"), id)
	return err
}
