package actors

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facilityflow/dispatch"
	"facilityflow/request"
	"facilityflow/staff"
)

// Env bundles the services the actors drive. Unexpected counts errors that
// are not domain outcomes, such as connections killed by chaos.
type Env struct {
	Pool       *pgxpool.Pool
	Requests   *request.Service
	Staff      *staff.Service
	Dispatch   *dispatch.Service
	StudentID  string
	TaskTypes  []request.TaskType
	Unexpected atomic.Int64
}

var expected = []error{
	dispatch.ErrNoEligibleWorker,
	dispatch.ErrNoPendingRequest,
	dispatch.ErrNotPending,
	dispatch.ErrNotInProgress,
	dispatch.ErrNotAssignee,
	dispatch.ErrAlreadyClosed,
	staff.ErrBusy,
	request.ErrNotFound,
	staff.ErrNotFound,
	pgx.ErrNoRows,
}

func (e *Env) observe(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for _, want := range expected {
		if errors.Is(err, want) {
			return nil
		}
	}
	e.Unexpected.Add(1)
	return nil
}

func buildings() []string {
	out := make([]string, 0, len(request.FloorLimits))
	for b := range request.FloorLimits {
		out = append(out, b)
	}
	return out
}

func randomLocation(rng *rand.Rand, names []string) (string, int) {
	b := names[rng.Intn(len(names))]
	return b, 1 + rng.Intn(request.FloorLimits[b])
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

// Filer files requests at random locations and dispatches each immediately,
// the way the create endpoint does.
func Filer(ctx context.Context, env *Env, rng *rand.Rand, stop <-chan struct{}) error {
	names := buildings()
	wings := []string{"", "A", "B"}
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		building, floor := randomLocation(rng, names)
		created, err := env.Requests.Create(ctx, request.CreateParams{
			SubmittedBy:   env.StudentID,
			TaskType:      env.TaskTypes[rng.Intn(len(env.TaskTypes))],
			Building:      building,
			Wing:          wings[rng.Intn(len(wings))],
			LocationFloor: floor,
		})
		if err == nil {
			_, err = env.Dispatch.AssignNewRequest(ctx, created.ID)
		}
		if err := env.observe(ctx, err); err != nil {
			return err
		}
		time.Sleep(time.Duration(10+rng.Intn(30)) * time.Millisecond)
	}
}

// Completer finishes a random in-progress request as its assignee. Now and
// then it names the wrong worker to exercise the assignee guard.
func Completer(ctx context.Context, env *Env, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		var requestID, workerID string
		err := env.Pool.QueryRow(ctx, `
			SELECT id::text, assigned_to::text FROM requests
			WHERE status = 'in_progress'
			ORDER BY random() LIMIT 1`).Scan(&requestID, &workerID)
		if err == nil {
			if rng.Intn(10) == 0 {
				_ = env.Pool.QueryRow(ctx, `SELECT id::text FROM staff ORDER BY random() LIMIT 1`).Scan(&workerID)
			}
			_, err = env.Dispatch.CompleteByStaff(ctx, workerID, requestID)
		}
		if err := env.observe(ctx, err); err != nil {
			return err
		}
		time.Sleep(time.Duration(20+rng.Intn(40)) * time.Millisecond)
	}
}

// Mover relocates random workers. Busy workers must be refused.
func Mover(ctx context.Context, env *Env, rng *rand.Rand, stop <-chan struct{}) error {
	names := buildings()
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		var workerID string
		err := env.Pool.QueryRow(ctx, `SELECT id::text FROM staff ORDER BY random() LIMIT 1`).Scan(&workerID)
		if err == nil {
			building, floor := randomLocation(rng, names)
			_, err = env.Staff.UpdateLocation(ctx, workerID, staff.Location{Building: building, Floor: floor})
		}
		if err := env.observe(ctx, err); err != nil {
			return err
		}
		time.Sleep(time.Duration(30+rng.Intn(50)) * time.Millisecond)
	}
}

// Admin closes or relocates random open requests and retries idle workers.
func Admin(ctx context.Context, env *Env, rng *rand.Rand, stop <-chan struct{}) error {
	names := buildings()
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		var requestID string
		err := env.Pool.QueryRow(ctx, `
			SELECT id::text FROM requests
			WHERE status IN ('pending', 'in_progress')
			ORDER BY random() LIMIT 1`).Scan(&requestID)
		if err == nil {
			switch rng.Intn(4) {
			case 0:
				_, err = env.Dispatch.Cancel(ctx, requestID)
			case 1:
				_, err = env.Dispatch.CompleteByAdmin(ctx, requestID)
			case 2:
				building, floor := randomLocation(rng, names)
				var edited request.Request
				edited, err = env.Dispatch.Edit(ctx, requestID, request.EditParams{Building: &building, LocationFloor: &floor})
				if err == nil && edited.Status == request.StatusPending {
					_, err = env.Dispatch.AssignNewRequest(ctx, edited.ID)
				}
			default:
				var workerID string
				err = env.Pool.QueryRow(ctx, `SELECT id::text FROM staff WHERE status = 'free' ORDER BY random() LIMIT 1`).Scan(&workerID)
				if err == nil {
					_, err = env.Dispatch.AssignNextForWorker(ctx, workerID)
				}
			}
		}
		if err := env.observe(ctx, err); err != nil {
			return err
		}
		time.Sleep(time.Duration(80+rng.Intn(120)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks
// them processed, or dead after repeated simulated failures.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		rows, err := tx.Query(ctx, `SELECT id::text FROM outbox WHERE status = 'pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			_ = tx.Rollback(ctx)
			continue
		}
		for _, id := range ids {
			if rng.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `
					UPDATE outbox
					SET attempts = attempts + 1,
					    last_attempt = now(),
					    status = CASE WHEN attempts + 1 >= 5 THEN 'dead' ELSE status END
					WHERE id = $1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status = 'processed', last_attempt = now() WHERE id = $1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
