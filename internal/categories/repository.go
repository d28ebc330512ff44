package categories

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/fieldops/internal/platform/db"
	"github.com/fieldops/fieldops/internal/platform/httpx"
)

// Repository persists categories.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Category, error)
	Create(ctx context.Context, c Category) (Category, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Category, error) {
	query := `SELECT id, name, description, created_at FROM categories WHERE 1=1`
	var args []any
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += ` AND name ILIKE $` + strconv.Itoa(len(args))
	}
	query += " ORDER BY " + sortOrder(filters.SortDir)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Category) (Category, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, description) VALUES ($1, $2)
RETURNING id, created_at`, c.Name, c.Description).Scan(&c.ID, &c.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Category{}, fmt.Errorf("category %q: %w", c.Name, httpx.ErrDuplicate)
	}
	if err != nil {
		return Category{}, err
	}
	return c, nil
}

// Delete fails with a conflict while inquiries still reference the category.
func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: category %d is in use", httpx.ErrConflict, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("category %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func sortOrder(sortDir string) string {
	if sortDir == "desc" {
		return "name DESC"
	}
	return "name ASC"
}
