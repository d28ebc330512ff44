package engineers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/fieldops/internal/platform/db"
	"github.com/fieldops/fieldops/internal/platform/httpx"
	"github.com/fieldops/fieldops/internal/rbac"
)

// Repository persists engineers together with their login accounts.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Engineer, error)
	Get(ctx context.Context, userID int64) (Engineer, error)
	Create(ctx context.Context, e Engineer, passwordHash string) (Engineer, error)
	SetActive(ctx context.Context, userID int64, active bool) error
	Delete(ctx context.Context, userID int64) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const engineerSelect = `SELECT e.user_id, u.email, u.name, e.phone, e.skills, e.partner_id, e.is_active AND u.is_active, e.created_at
FROM engineers e JOIN users u ON u.id = e.user_id`

func scanEngineer(row pgx.Row) (Engineer, error) {
	var (
		e       Engineer
		partner pgtype.Int8
	)
	if err := row.Scan(&e.UserID, &e.Email, &e.Name, &e.Phone, &e.Skills, &partner, &e.IsActive, &e.CreatedAt); err != nil {
		return Engineer{}, err
	}
	if partner.Valid {
		id := partner.Int64
		e.PartnerID = &id
	}
	if e.Skills == nil {
		e.Skills = []string{}
	}
	return e, nil
}

func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Engineer, error) {
	query := engineerSelect + ` WHERE 1=1`
	var args []any
	if filters.ActiveOnly {
		query += ` AND e.is_active AND u.is_active`
	}
	if filters.PartnerID > 0 {
		args = append(args, filters.PartnerID)
		query += ` AND e.partner_id = $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY u.name, e.user_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Engineer
	for rows.Next() {
		e, err := scanEngineer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PGRepository) Get(ctx context.Context, userID int64) (Engineer, error) {
	e, err := scanEngineer(r.pool.QueryRow(ctx, engineerSelect+` WHERE e.user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Engineer{}, fmt.Errorf("engineer %d: %w", userID, httpx.ErrNotFound)
	}
	return e, err
}

// Create inserts the login account and the engineer profile in one transaction.
func (r *PGRepository) Create(ctx context.Context, e Engineer, passwordHash string) (Engineer, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, role) VALUES ($1, $2, $3, $4)
RETURNING id`, e.Email, e.Name, passwordHash, string(rbac.RoleEngineer)).Scan(&e.UserID)
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, `INSERT INTO engineers (user_id, phone, skills, partner_id) VALUES ($1, $2, $3, $4)
RETURNING is_active, created_at`, e.UserID, e.Phone, e.Skills, e.PartnerID).Scan(&e.IsActive, &e.CreatedAt)
	})
	if db.IsUniqueViolation(err) {
		return Engineer{}, fmt.Errorf("email %s: %w", e.Email, httpx.ErrDuplicate)
	}
	if err != nil {
		return Engineer{}, err
	}
	return e, nil
}

// SetActive toggles the profile and the login account together.
func (r *PGRepository) SetActive(ctx context.Context, userID int64, active bool) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE engineers SET is_active = $2 WHERE user_id = $1`, userID, active)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("engineer %d: %w", userID, httpx.ErrNotFound)
		}
		_, err = tx.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, userID, active)
		return err
	})
}

// Delete removes the account. Engineers referenced by inquiries can only be
// deactivated.
func (r *PGRepository) Delete(ctx context.Context, userID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1 AND EXISTS (SELECT 1 FROM engineers WHERE user_id = $1)`, userID)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: engineer %d has inquiries, deactivate instead", httpx.ErrConflict, userID)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("engineer %d: %w", userID, httpx.ErrNotFound)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
