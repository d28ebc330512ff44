package inquiries

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/fieldops/internal/platform/db"
	"github.com/fieldops/fieldops/internal/platform/httpx"
)

// Repository defines inquiry persistence.
type Repository interface {
	Create(ctx context.Context, inq Inquiry) (Inquiry, error)
	Get(ctx context.Context, id int64) (Inquiry, error)
	List(ctx context.Context, q ListQuery) ([]Inquiry, error)
	Assign(ctx context.Context, id, engineerID int64) error
	SetStatus(ctx context.Context, id int64, from, to Status) error
	SetPrice(ctx context.Context, id int64, price float64) error
	Delete(ctx context.Context, id int64) error
	SaveFeedback(ctx context.Context, id int64, rating int, comment string) error
	AddCollection(ctx context.Context, c Collection) (Collection, error)
	ListCollections(ctx context.Context, inquiryID int64) ([]Collection, error)
	CountByStatus(ctx context.Context, q ListQuery) (map[Status]int, error)
	Report(ctx context.Context, from, to time.Time) (Report, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const inquiryColumns = `id, user_id, engineer_id, category_id, customer_name, phone, address, appliance, problem,
status, price, rating, COALESCE(feedback, ''), created_at, updated_at`

func scanInquiry(row pgx.Row) (Inquiry, error) {
	var (
		inq      Inquiry
		engineer pgtype.Int8
		category pgtype.Int8
		rating   pgtype.Int2
		status   string
	)
	err := row.Scan(&inq.ID, &inq.UserID, &engineer, &category, &inq.CustomerName, &inq.Phone, &inq.Address,
		&inq.Appliance, &inq.Problem, &status, &inq.Price, &rating, &inq.Feedback, &inq.CreatedAt, &inq.UpdatedAt)
	if err != nil {
		return Inquiry{}, err
	}
	inq.Status = Status(status)
	if engineer.Valid {
		id := engineer.Int64
		inq.EngineerID = &id
	}
	if category.Valid {
		id := category.Int64
		inq.CategoryID = &id
	}
	if rating.Valid {
		r := int(rating.Int16)
		inq.Rating = &r
	}
	return inq, nil
}

// Create inserts a new inquiry.
func (r *PGRepository) Create(ctx context.Context, inq Inquiry) (Inquiry, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO inquiries (user_id, category_id, customer_name, phone, address, appliance, problem, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+inquiryColumns,
		inq.UserID, inq.CategoryID, inq.CustomerName, inq.Phone, inq.Address, inq.Appliance, inq.Problem, string(inq.Status))
	created, err := scanInquiry(row)
	if db.IsForeignKeyViolation(err) {
		return Inquiry{}, fmt.Errorf("%w: unknown category", httpx.ErrValidation)
	}
	return created, err
}

// Get loads one inquiry.
func (r *PGRepository) Get(ctx context.Context, id int64) (Inquiry, error) {
	inq, err := scanInquiry(r.pool.QueryRow(ctx, `SELECT `+inquiryColumns+` FROM inquiries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Inquiry{}, fmt.Errorf("inquiry %d: %w", id, httpx.ErrNotFound)
	}
	return inq, err
}

// List returns inquiries matching q, newest first.
func (r *PGRepository) List(ctx context.Context, q ListQuery) ([]Inquiry, error) {
	where, args := q.where()
	query := `SELECT ` + inquiryColumns + ` FROM inquiries` + where + ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit, q.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Inquiry
	for rows.Next() {
		inq, err := scanInquiry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inq)
	}
	return out, rows.Err()
}

func (q ListQuery) where() (string, []any) {
	var (
		clause string
		args   []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		if clause == "" {
			clause = " WHERE "
		} else {
			clause += " AND "
		}
		clause += cond + " = $" + strconv.Itoa(len(args))
	}
	if q.AssignedTo > 0 {
		add("engineer_id", q.AssignedTo)
	}
	if q.CreatedBy > 0 {
		add("user_id", q.CreatedBy)
	}
	if q.Status != "" {
		add("status", string(q.Status))
	}
	return clause, args
}

// Assign sets the engineer and moves a pending or assigned inquiry to assigned.
func (r *PGRepository) Assign(ctx context.Context, id, engineerID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE inquiries SET engineer_id = $2, status = 'assigned', updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'assigned')`, id, engineerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: inquiry %d cannot be assigned", httpx.ErrConflict, id)
	}
	return nil
}

// SetStatus moves id from one status to another; a concurrent change makes it
// fail with a conflict.
func (r *PGRepository) SetStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE inquiries SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: inquiry %d is no longer %s", httpx.ErrConflict, id, from)
	}
	return nil
}

// SetPrice updates the quoted price.
func (r *PGRepository) SetPrice(ctx context.Context, id int64, price float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE inquiries SET price = $2, updated_at = NOW() WHERE id = $1 AND status <> 'cancelled'`, id, price)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: inquiry %d cannot be repriced", httpx.ErrConflict, id)
	}
	return nil
}

// Delete removes an inquiry and its collections.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM inquiries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inquiry %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

// SaveFeedback stores the first rating of a completed inquiry.
func (r *PGRepository) SaveFeedback(ctx context.Context, id int64, rating int, comment string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE inquiries SET rating = $2, feedback = $3, updated_at = NOW()
WHERE id = $1 AND status = 'completed' AND rating IS NULL`, id, rating, comment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: feedback already recorded", httpx.ErrConflict)
	}
	return nil
}

// AddCollection records a payment.
func (r *PGRepository) AddCollection(ctx context.Context, c Collection) (Collection, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO collections (inquiry_id, engineer_id, amount, method, reference)
VALUES ($1, $2, $3, $4, $5) RETURNING id, collected_at`,
		c.InquiryID, c.EngineerID, c.Amount, c.Method, c.Reference).Scan(&c.ID, &c.CollectedAt)
	if err != nil {
		return Collection{}, err
	}
	return c, nil
}

// ListCollections returns payments, all of them when inquiryID is zero.
func (r *PGRepository) ListCollections(ctx context.Context, inquiryID int64) ([]Collection, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, inquiry_id, engineer_id, amount, method, reference, collected_at
FROM collections WHERE ($1::bigint = 0 OR inquiry_id = $1) ORDER BY collected_at DESC, id DESC`, inquiryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.InquiryID, &c.EngineerID, &c.Amount, &c.Method, &c.Reference, &c.CollectedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountByStatus groups inquiries matching q by status.
func (r *PGRepository) CountByStatus(ctx context.Context, q ListQuery) (map[Status]int, error) {
	where, args := q.where()
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM inquiries`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// Report aggregates inquiries created in [from, to).
func (r *PGRepository) Report(ctx context.Context, from, to time.Time) (Report, error) {
	rep := Report{From: from, To: to}
	var err error
	rep.ByStatus, err = r.countWindow(ctx, from, to)
	if err != nil {
		return Report{}, err
	}
	var avg pgtype.Float8
	err = r.pool.QueryRow(ctx, `SELECT
  COALESCE(SUM(price) FILTER (WHERE status = 'completed'), 0)::float8,
  AVG(rating)::float8,
  COUNT(rating)
FROM inquiries WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&rep.Revenue, &avg, &rep.Rated)
	if err != nil {
		return Report{}, err
	}
	if avg.Valid {
		rep.AverageRating = avg.Float64
	}
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::float8 FROM collections
WHERE collected_at >= $1 AND collected_at < $2`, from, to).Scan(&rep.Collected)
	if err != nil {
		return Report{}, err
	}
	return rep, nil
}

func (r *PGRepository) countWindow(ctx context.Context, from, to time.Time) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM inquiries WHERE created_at >= $1 AND created_at < $2 GROUP BY status`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
