package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"facilityflow/request"
)

var (
	// ErrBusy signals an operation that requires a free worker.
	ErrBusy = errors.New("staff: worker is busy")
	// ErrInvalidLocation signals a location outside the known campus.
	ErrInvalidLocation = errors.New("staff: invalid location")
	ErrInvalidWorker   = errors.New("staff: invalid worker")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountRemover deletes the login behind a worker.
type AccountRemover interface {
	DeleteUser(ctx context.Context, tx pgx.Tx, userID string) error
}

// Service exposes roster operations.
type Service struct {
	pool     TxBeginner
	repo     Repository
	accounts AccountRemover
}

// NewService builds a Service using the provided pool and repository.
func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{pool: pool, repo: repo}
}

// WithAccounts makes Delete remove the worker's login as well.
func (s *Service) WithAccounts(accounts AccountRemover) *Service {
	s.accounts = accounts
	return s
}

// Normalize trims and defaults p in place and validates the result. Workers
// created without a location start at the academic block, floor 1.
func (p *CreateParams) Normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidWorker)
	}
	if !p.TaskType.Valid() {
		return request.ErrInvalidTaskType
	}
	if p.Gender != GenderMale && p.Gender != GenderFemale {
		return fmt.Errorf("%w: gender %q", ErrInvalidWorker, p.Gender)
	}
	if p.Location.Building == "" {
		p.Location = Location{Building: request.BuildingAcademic, Floor: 1}
	}
	p.Location.Wing = strings.TrimSpace(p.Location.Wing)
	return validateLocation(p.Location)
}

// Create adds a worker. New workers start free.
func (s *Service) Create(ctx context.Context, params CreateParams) (Worker, error) {
	if err := params.Normalize(); err != nil {
		return Worker{}, err
	}
	return s.repo.Create(ctx, params)
}

// List returns the full roster.
func (s *Service) List(ctx context.Context) ([]Worker, error) {
	return s.repo.ListAll(ctx)
}

// GetByUserID resolves the worker record behind a staff login.
func (s *Service) GetByUserID(ctx context.Context, userID string) (Worker, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// UpdateLocation lets a free worker report where they are. Busy workers are
// moved only by dispatch.
func (s *Service) UpdateLocation(ctx context.Context, workerID string, loc Location) (Worker, error) {
	if err := validateLocation(loc); err != nil {
		return Worker{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Worker{}, fmt.Errorf("staff: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	w, err := s.repo.GetForUpdate(ctx, tx, workerID)
	if err != nil {
		return Worker{}, err
	}
	if w.Status == StatusBusy {
		return Worker{}, ErrBusy
	}

	loc.Wing = strings.TrimSpace(loc.Wing)
	moved, err := s.repo.MoveTo(ctx, tx, workerID, loc, StatusFree)
	if err != nil {
		return Worker{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Worker{}, fmt.Errorf("staff: commit tx: %w", err)
	}
	return moved, nil
}

// Delete removes a free worker and its login in one transaction. A busy
// worker is refused with ErrBusy until its request is closed.
func (s *Service) Delete(ctx context.Context, workerID string) (Worker, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Worker{}, fmt.Errorf("staff: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	w, err := s.repo.GetForUpdate(ctx, tx, workerID)
	if err != nil {
		return Worker{}, err
	}
	if w.Status == StatusBusy {
		return Worker{}, ErrBusy
	}

	deleted, err := s.repo.Delete(ctx, tx, workerID)
	if err != nil {
		return Worker{}, err
	}
	if s.accounts != nil && deleted.UserID != nil {
		if err := s.accounts.DeleteUser(ctx, tx, *deleted.UserID); err != nil {
			return Worker{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Worker{}, fmt.Errorf("staff: commit delete: %w", err)
	}
	return deleted, nil
}

func validateLocation(loc Location) error {
	maxFloor, ok := request.FloorLimits[loc.Building]
	if !ok {
		return fmt.Errorf("%w: unknown building %q", ErrInvalidLocation, loc.Building)
	}
	if loc.Floor < 1 || loc.Floor > maxFloor {
		return fmt.Errorf("%w: floor %d", ErrInvalidLocation, loc.Floor)
	}
	return nil
}
