package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrMissingSubmitter = errors.New("request: missing submitter")
	ErrInvalidTaskType  = errors.New("request: invalid task type")
	ErrUnknownBuilding  = errors.New("request: unknown building")
	ErrInvalidFloor     = errors.New("request: floor out of range for building")
	ErrInvalidStatus    = errors.New("request: invalid status")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Service struct {
	pool        TxBeginner
	repo        Repository
	idGenerator func() string
	now         func() time.Time
}

type CreateParams struct {
	SubmittedBy   string
	TaskType      TaskType
	Building      string
	Wing          string
	LocationFloor int
	Description   string
}

// NewService returns a Service that stamps new requests with random UUIDs
// and the wall clock.
func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

// WithIDGenerator overrides how request IDs are minted.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// WithClock overrides the registration time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create files a new pending request after checking the floor against the
// building's floor count.
func (s *Service) Create(ctx context.Context, params CreateParams) (Request, error) {
	if params.SubmittedBy == "" {
		return Request{}, ErrMissingSubmitter
	}
	if err := Validate(params.TaskType, params.Building, params.LocationFloor); err != nil {
		return Request{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("request: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	submitter := params.SubmittedBy
	created, err := s.repo.Create(ctx, tx, Request{
		ID:               s.idGenerator(),
		TaskType:         params.TaskType,
		Building:         params.Building,
		Wing:             strings.TrimSpace(params.Wing),
		LocationFloor:    params.LocationFloor,
		Description:      strings.TrimSpace(params.Description),
		Status:           StatusPending,
		RegistrationTime: s.now().UTC(),
		SubmittedBy:      &submitter,
	})
	if err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("request: commit tx: %w", err)
	}
	return created, nil
}

// Validate checks a task type and location against the campus layout.
func Validate(taskType TaskType, building string, floor int) error {
	if !taskType.Valid() {
		return ErrInvalidTaskType
	}
	maxFloor, ok := FloorLimits[building]
	if !ok {
		return ErrUnknownBuilding
	}
	if floor < 1 || floor > maxFloor {
		return fmt.Errorf("%w: %s has floors 1-%d", ErrInvalidFloor, building, maxFloor)
	}
	return nil
}

// EditParams carries an administrator's partial edit. Nil fields are left
// unchanged.
type EditParams struct {
	TaskType      *TaskType
	Building      *string
	Wing          *string
	LocationFloor *int
	Description   *string
	Status        *Status
}

// Apply returns req with the edit applied, validated the same way Create
// validates a new request.
func (p EditParams) Apply(req Request) (Request, error) {
	out := req
	if p.TaskType != nil {
		out.TaskType = *p.TaskType
	}
	if p.Building != nil {
		out.Building = *p.Building
	}
	if p.Wing != nil {
		out.Wing = strings.TrimSpace(*p.Wing)
	}
	if p.LocationFloor != nil {
		out.LocationFloor = *p.LocationFloor
	}
	if p.Description != nil {
		out.Description = strings.TrimSpace(*p.Description)
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return Request{}, ErrInvalidStatus
		}
		out.Status = *p.Status
	}
	if err := Validate(out.TaskType, out.Building, out.LocationFloor); err != nil {
		return Request{}, err
	}
	return out, nil
}

func (s *Service) ListAll(ctx context.Context) ([]Request, error) {
	return s.repo.ListAll(ctx)
}

func (s *Service) ListBySubmitter(ctx context.Context, userID string) ([]Request, error) {
	return s.repo.ListBySubmitter(ctx, userID)
}

// ListForWorker returns the worker's own requests together with the pending
// requests of its task type.
func (s *Service) ListForWorker(ctx context.Context, workerID string, taskType TaskType) ([]Request, error) {
	return s.repo.ListForWorker(ctx, workerID, taskType)
}

func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.repo.Get(ctx, id)
}
