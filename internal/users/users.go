package users

import (
	"context"
	"time"

	"github.com/example/teetime-scheduler/internal/db"
)

// User is a login for the status UI.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Create(ctx context.Context, username, passwordHash string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO users(username, password_bcrypt) VALUES ($1,$2) RETURNING id`,
		username, passwordHash,
	).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := r.db.QueryRow(ctx,
		`SELECT id, username, password_bcrypt, created_at FROM users WHERE username=$1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return User{}, db.WrapNotFound(err)
	}
	return u, nil
}
