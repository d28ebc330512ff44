package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/fieldops/internal/identity"
	"github.com/fieldops/fieldops/internal/platform/db"
	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

const (
	effectGrant  = "grant"
	effectRevoke = "revoke"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, name, role, is_active, created_at, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		var role string
		if err := rows.Scan(&a.ID, &a.Email, &a.Name, &role, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Role = rbac.Role(role)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Principal loads the role and overrides of userID, active or not. A missing
// user yields httpx.ErrNotFound.
func (r *Repository) Principal(ctx context.Context, userID int64) (*rbac.User, error) {
	user, _, err := r.principal(ctx, userID)
	return user, err
}

// LoadPrincipal implements identity.PrincipalLoader. Unknown and inactive
// accounts cannot authenticate.
func (r *Repository) LoadPrincipal(ctx context.Context, userID int64) (*rbac.User, error) {
	user, active, err := r.principal(ctx, userID)
	if errors.Is(err, httpx.ErrNotFound) {
		return nil, fmt.Errorf("users: %d: %w", userID, identity.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, fmt.Errorf("users: %d inactive: %w", userID, identity.ErrUnauthenticated)
	}
	return user, nil
}

func (r *Repository) principal(ctx context.Context, userID int64) (*rbac.User, bool, error) {
	var (
		role   string
		active bool
	)
	err := r.pool.QueryRow(ctx, `SELECT role, is_active FROM users WHERE id = $1`, userID).Scan(&role, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("user %d: %w", userID, httpx.ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("users: load %d: %w", userID, err)
	}

	rows, err := r.pool.Query(ctx, `SELECT permission, effect FROM user_permission_overrides WHERE user_id = $1`, userID)
	if err != nil {
		return nil, false, fmt.Errorf("users: load overrides %d: %w", userID, err)
	}
	defer rows.Close()

	user := &rbac.User{
		ID:        strconv.FormatInt(userID, 10),
		Role:      rbac.Role(role),
		Overrides: rbac.NewPermissionSet(),
		Revoked:   rbac.NewPermissionSet(),
	}
	for rows.Next() {
		var perm, effect string
		if err := rows.Scan(&perm, &effect); err != nil {
			return nil, false, err
		}
		// Rows naming permissions that no longer exist are carried through
		// and ignored by the resolver.
		switch effect {
		case effectGrant:
			user.Overrides[rbac.Permission(perm)] = struct{}{}
		case effectRevoke:
			user.Revoked[rbac.Permission(perm)] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return user, active, nil
}

// ReplaceOverrides swaps the full override set of userID in one transaction.
func (r *Repository) ReplaceOverrides(ctx context.Context, userID int64, granted, revoked []rbac.Permission, actorID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("user %d: %w", userID, httpx.ErrNotFound)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_permission_overrides WHERE user_id = $1`, userID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		queue := func(perms []rbac.Permission, effect string) {
			for _, p := range perms {
				batch.Queue(`INSERT INTO user_permission_overrides (user_id, permission, effect, granted_by) VALUES ($1, $2, $3, $4)`,
					userID, string(p), effect, actorID)
			}
		}
		queue(granted, effectGrant)
		queue(revoked, effectRevoke)
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// SetRole updates the role column of userID.
func (r *Repository) SetRole(ctx context.Context, userID int64, role rbac.Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, userID, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, httpx.ErrNotFound)
	}
	return nil
}

var _ identity.PrincipalLoader = (*Repository)(nil)
