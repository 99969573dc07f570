package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/types"
	"golang.org/x/crypto/bcrypt"
)

type postgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore creates a UserStore for operator accounts.
func NewPostgresUserStore(db *sql.DB) store.UserStore {
	return &postgresUserStore{db: db}
}

// Create inserts the operator or resets the password of an existing one.
func (r *postgresUserStore) Create(ctx context.Context, username, password string) (int64, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO genfire_schema.users (username, password)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET password = EXCLUDED.password
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, username, string(hashedPassword)).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return id, nil
}

// Find returns ErrNotFound for an unknown username and a wrong password alike.
func (r *postgresUserStore) Find(ctx context.Context, username, password string) (*types.User, error) {
	query := `SELECT id, username, password FROM genfire_schema.users WHERE username = $1`
	user := &types.User{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username, &user.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, custom_errors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user %s: %w", username, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, custom_errors.ErrNotFound
	}
	user.Password = ""
	return user, nil
}

func (r *postgresUserStore) FindByUsername(ctx context.Context, username string) (*types.User, error) {
	query := `SELECT id, username FROM genfire_schema.users WHERE username = $1`
	user := &types.User{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user %s: %w", username, err)
	}
	return user, nil
}

func (r *postgresUserStore) Delete(ctx context.Context, username string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM genfire_schema.users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", username, err)
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no user found to delete: %w", custom_errors.ErrNotFound)
	}
	return nil
}
