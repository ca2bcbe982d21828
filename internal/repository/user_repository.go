package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/utils"
)

type userRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	DisplayName  string `db:"display_name"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    int64  `db:"created_at"`
}

func (r userRow) model() model.User {
	return model.User{
		ID:           r.ID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		PasswordHash: r.PasswordHash,
		CreatedAt:    time.UnixMilli(r.CreatedAt).UTC(),
	}
}

type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create hashes password, inserts the user and returns its new id.
func (r *UserRepo) Create(ctx context.Context, email, displayName, password string, cost int) (string, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	id := uuid.NewString()
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?,?,?,?,?)",
		id, normalizeEmail(email), strings.TrimSpace(displayName), hash, time.Now().UTC().UnixMilli())
	if err != nil {
		if isDuplicate(err) {
			return "", ErrEmailExists
		}
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	var row userRow
	err := r.DB.GetContext(ctx, &row,
		"SELECT id, email, display_name, password_hash, created_at FROM users WHERE email = ? LIMIT 1",
		normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.NotFound("user", email)
	}
	if err != nil {
		return model.User{}, err
	}
	return row.model(), nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var row userRow
	err := r.DB.GetContext(ctx, &row,
		"SELECT id, email, display_name, password_hash, created_at FROM users WHERE id = ? LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.NotFound("user", id)
	}
	if err != nil {
		return model.User{}, err
	}
	return row.model(), nil
}

// DisplayNames resolves user ids to display names in one query. Unknown ids
// are absent from the result.
func (r *UserRepo) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In("SELECT id, display_name FROM users WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID          string `db:"id"`
		DisplayName string `db:"display_name"`
	}
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select display names: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row.DisplayName
	}
	return out, nil
}
