package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"ticketing/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	if db == nil {
		panic("db is nil")
	}

	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Store(ctx context.Context, user entity.User) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (user_id, email, name, role, notifications_enabled)
		VALUES (:user_id, :email, :name, :role, :notifications_enabled)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			notifications_enabled = EXCLUDED.notifications_enabled
	`, user)
	if err != nil {
		return fmt.Errorf("could not store user %s: %w", user.UserID, err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (entity.User, error) {
	var user entity.User
	err := r.db.GetContext(ctx, &user, `
		SELECT user_id, email, name, role, notifications_enabled
		FROM users
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.User{}, fmt.Errorf("user %s: %w", userID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.User{}, fmt.Errorf("could not get user %s: %w", userID, err)
	}

	return user, nil
}
