package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facilityflow/request"
)

var (
	// ErrNotFound signals the worker does not exist.
	ErrNotFound = errors.New("staff: not found")
)

// Repository provides access to the worker roster.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Worker, error)
	ListAll(ctx context.Context) ([]Worker, error)
	Get(ctx context.Context, id string) (Worker, error)
	GetByUserID(ctx context.Context, userID string) (Worker, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Worker, error)
	ListFreeForUpdate(ctx context.Context, tx pgx.Tx, taskType request.TaskType) ([]Worker, error)
	SetStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Worker, error)
	MoveTo(ctx context.Context, tx pgx.Tx, id string, loc Location, status Status) (Worker, error)
	Delete(ctx context.Context, tx pgx.Tx, id string) (Worker, error)
}

// CreateParams holds the fields required to add a worker to the roster.
type CreateParams struct {
	UserID   *string
	Name     string
	TaskType request.TaskType
	Gender   Gender
	Location Location
}

const selectColumns = `
	id::text, user_id::text, name, task_type, gender, current_building,
	COALESCE(current_wing, ''), current_location_floor, status
`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed roster repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Worker, error) {
	const query = `
		INSERT INTO staff (user_id, name, task_type, gender, current_building, current_wing, current_location_floor, status)
		VALUES ($1::uuid, $2, $3, $4, $5, NULLIF($6, ''), $7, 'free')
		RETURNING ` + selectColumns

	w, err := scanWorker(r.pool.QueryRow(ctx, query,
		params.UserID,
		params.Name,
		params.TaskType,
		params.Gender,
		params.Location.Building,
		params.Location.Wing,
		params.Location.Floor,
	))
	if err != nil {
		return Worker{}, fmt.Errorf("staff: create: %w", err)
	}
	return w, nil
}

// ListAll returns the full roster in a stable order. The order is the roster
// order used to break ties between equally close workers.
func (r *PGRepository) ListAll(ctx context.Context) ([]Worker, error) {
	const query = `SELECT ` + selectColumns + ` FROM staff ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("staff: list: %w", err)
	}
	defer rows.Close()

	workers := make([]Worker, 0, 16)
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("staff: scan worker: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("staff: iterate workers: %w", err)
	}
	return workers, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Worker, error) {
	const query = `SELECT ` + selectColumns + ` FROM staff WHERE id = $1`
	return r.getOne(r.pool.QueryRow(ctx, query, id), "get")
}

func (r *PGRepository) GetByUserID(ctx context.Context, userID string) (Worker, error) {
	const query = `SELECT ` + selectColumns + ` FROM staff WHERE user_id = $1`
	return r.getOne(r.pool.QueryRow(ctx, query, userID), "get by user")
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Worker, error) {
	const query = `SELECT ` + selectColumns + ` FROM staff WHERE id = $1 FOR UPDATE`
	return r.getOne(tx.QueryRow(ctx, query, id), "get for update")
}

// ListFreeForUpdate locks the free workers of one task type in roster order.
func (r *PGRepository) ListFreeForUpdate(ctx context.Context, tx pgx.Tx, taskType request.TaskType) ([]Worker, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM staff
		WHERE status = 'free' AND task_type = $1
		ORDER BY created_at ASC, id ASC
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, query, taskType)
	if err != nil {
		return nil, fmt.Errorf("staff: query free workers: %w", err)
	}
	defer rows.Close()

	var workers []Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("staff: scan free worker: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("staff: iterate free workers: %w", err)
	}
	return workers, nil
}

func (r *PGRepository) SetStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Worker, error) {
	const query = `
		UPDATE staff
		SET status = $2
		WHERE id = $1
		RETURNING ` + selectColumns
	return r.getOne(tx.QueryRow(ctx, query, id, status), "set status")
}

// MoveTo records a new location for the worker together with its status.
func (r *PGRepository) MoveTo(ctx context.Context, tx pgx.Tx, id string, loc Location, status Status) (Worker, error) {
	const query = `
		UPDATE staff
		SET current_building = $2,
		    current_wing = NULLIF($3, ''),
		    current_location_floor = $4,
		    status = $5
		WHERE id = $1
		RETURNING ` + selectColumns
	return r.getOne(tx.QueryRow(ctx, query, id, loc.Building, loc.Wing, loc.Floor, status), "move")
}

// Delete removes the worker. Requests it served keep their history with the
// assignee cleared.
func (r *PGRepository) Delete(ctx context.Context, tx pgx.Tx, id string) (Worker, error) {
	const query = `DELETE FROM staff WHERE id = $1 RETURNING ` + selectColumns
	return r.getOne(tx.QueryRow(ctx, query, id), "delete")
}

func (r *PGRepository) getOne(row pgx.Row, action string) (Worker, error) {
	w, err := scanWorker(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Worker{}, ErrNotFound
		}
		return Worker{}, fmt.Errorf("staff: %s: %w", action, err)
	}
	return w, nil
}

func scanWorker(row pgx.Row) (Worker, error) {
	var w Worker
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Name,
		&w.TaskType,
		&w.Gender,
		&w.CurrentBuilding,
		&w.CurrentWing,
		&w.CurrentLocationFloor,
		&w.Status,
	)
	return w, err
}
