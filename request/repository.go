package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("request: not found")
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, req Request) (Request, error)
	ListAll(ctx context.Context) ([]Request, error)
	ListBySubmitter(ctx context.Context, userID string) ([]Request, error)
	ListForWorker(ctx context.Context, workerID string, taskType TaskType) ([]Request, error)
	Get(ctx context.Context, id string) (Request, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error)
	ListPendingForUpdate(ctx context.Context, tx pgx.Tx, taskType TaskType) ([]Request, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Request, error)
	Assign(ctx context.Context, tx pgx.Tx, id, workerID string) (Request, error)
	Save(ctx context.Context, tx pgx.Tx, req Request) (Request, error)
}

const selectColumns = `
	r.id::text, r.task_type, r.building, COALESCE(r.wing, ''), r.location_floor, r.description,
	r.status, r.registration_time, r.submitted_by::text, r.assigned_to::text, s.name
`

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, req Request) (Request, error) {
	const query = `
		WITH inserted AS (
			INSERT INTO requests (id, task_type, building, wing, location_floor, description, status, registration_time, submitted_by)
			VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9::uuid)
			RETURNING *
		)
		SELECT ` + selectColumns + `
		FROM inserted r
		LEFT JOIN staff s ON s.id = r.assigned_to
	`

	row := tx.QueryRow(ctx, query,
		req.ID,
		req.TaskType,
		req.Building,
		req.Wing,
		req.LocationFloor,
		req.Description,
		req.Status,
		req.RegistrationTime,
		req.SubmittedBy,
	)
	created, err := scanRequest(row)
	if err != nil {
		return Request{}, fmt.Errorf("request: create: %w", err)
	}
	return created, nil
}

// ListAll returns every request ordered by registration time, oldest first.
func (r *PGRepository) ListAll(ctx context.Context) ([]Request, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requests r
		LEFT JOIN staff s ON s.id = r.assigned_to
		ORDER BY r.registration_time ASC, r.id ASC
	`
	return r.list(ctx, query)
}

func (r *PGRepository) ListBySubmitter(ctx context.Context, userID string) ([]Request, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requests r
		LEFT JOIN staff s ON s.id = r.assigned_to
		WHERE r.submitted_by = $1
		ORDER BY r.registration_time DESC
	`
	return r.list(ctx, query, userID)
}

// ListForWorker returns requests assigned to the worker plus every pending
// request of its task type, grouped by status and oldest first within a
// status.
func (r *PGRepository) ListForWorker(ctx context.Context, workerID string, taskType TaskType) ([]Request, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requests r
		LEFT JOIN staff s ON s.id = r.assigned_to
		WHERE r.assigned_to = $1::uuid
		   OR (r.status = 'pending' AND r.task_type = $2)
		ORDER BY r.status ASC, r.registration_time ASC
	`
	return r.list(ctx, query, workerID, taskType)
}

func (r *PGRepository) list(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("request: query list: %w", err)
	}
	defer rows.Close()

	out := make([]Request, 0, 16)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("request: scan: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("request: iterate: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Request, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requests r
		LEFT JOIN staff s ON s.id = r.assigned_to
		WHERE r.id = $1
	`
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("request: get: %w", err)
	}
	return req, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requests r
		LEFT JOIN staff s ON s.id = r.assigned_to
		WHERE r.id = $1
		FOR UPDATE OF r
	`
	req, err := scanRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("request: get for update: %w", err)
	}
	return req, nil
}

// ListPendingForUpdate locks the pending requests of one task type. Rows
// already locked by a concurrent dispatch are skipped.
func (r *PGRepository) ListPendingForUpdate(ctx context.Context, tx pgx.Tx, taskType TaskType) ([]Request, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM requests r
		LEFT JOIN staff s ON s.id = r.assigned_to
		WHERE r.status = 'pending' AND r.task_type = $1
		ORDER BY r.registration_time ASC
		FOR UPDATE OF r SKIP LOCKED
	`
	rows, err := tx.Query(ctx, query, taskType)
	if err != nil {
		return nil, fmt.Errorf("request: query pending: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("request: scan pending: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("request: iterate pending: %w", err)
	}
	return out, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Request, error) {
	const query = `
		WITH updated AS (
			UPDATE requests
			SET status = $2
			WHERE id = $1
			RETURNING *
		)
		SELECT ` + selectColumns + `
		FROM updated r
		LEFT JOIN staff s ON s.id = r.assigned_to
	`
	req, err := scanRequest(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("request: update status: %w", err)
	}
	return req, nil
}

// Assign moves a request to in_progress under the given worker.
func (r *PGRepository) Assign(ctx context.Context, tx pgx.Tx, id, workerID string) (Request, error) {
	const query = `
		WITH updated AS (
			UPDATE requests
			SET status = 'in_progress',
			    assigned_to = $2::uuid
			WHERE id = $1
			RETURNING *
		)
		SELECT ` + selectColumns + `
		FROM updated r
		LEFT JOIN staff s ON s.id = r.assigned_to
	`
	req, err := scanRequest(tx.QueryRow(ctx, query, id, workerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("request: assign: %w", err)
	}
	return req, nil
}

// Save writes every editable column of req, including its assignee.
func (r *PGRepository) Save(ctx context.Context, tx pgx.Tx, req Request) (Request, error) {
	const query = `
		WITH updated AS (
			UPDATE requests
			SET task_type = $2,
			    building = $3,
			    wing = NULLIF($4, ''),
			    location_floor = $5,
			    description = $6,
			    status = $7,
			    assigned_to = $8::uuid
			WHERE id = $1
			RETURNING *
		)
		SELECT ` + selectColumns + `
		FROM updated r
		LEFT JOIN staff s ON s.id = r.assigned_to
	`
	saved, err := scanRequest(tx.QueryRow(ctx, query,
		req.ID,
		req.TaskType,
		req.Building,
		req.Wing,
		req.LocationFloor,
		req.Description,
		req.Status,
		req.AssignedTo,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("request: save: %w", err)
	}
	return saved, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	err := row.Scan(
		&req.ID,
		&req.TaskType,
		&req.Building,
		&req.Wing,
		&req.LocationFloor,
		&req.Description,
		&req.Status,
		&req.RegistrationTime,
		&req.SubmittedBy,
		&req.AssignedTo,
		&req.AssignedToName,
	)
	return req, err
}
