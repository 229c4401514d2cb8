package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jackc/pgx/v5"

	"facilityflow/request"
	"facilityflow/scheduler"
	"facilityflow/staff"
)

var (
	ErrNoEligibleWorker = errors.New("dispatch: no eligible free worker")
	ErrNoPendingRequest = errors.New("dispatch: no eligible pending request")
	ErrNotPending       = errors.New("dispatch: request is not pending")
	ErrNotInProgress    = errors.New("dispatch: request is not in progress")
	ErrNotAssignee      = errors.New("dispatch: request not assigned to worker")
	ErrAlreadyClosed    = errors.New("dispatch: request already closed")
	ErrManualAssignment = errors.New("dispatch: requests enter in_progress only through assignment")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Assignment is the outcome of sending a worker to a request.
type Assignment struct {
	Request request.Request
	Worker  staff.Worker
}

// CompletionResult carries the completed request and, when one was found,
// the worker's next assignment.
type CompletionResult struct {
	Request request.Request
	Next    *Assignment
}

// Service applies assignments. Unlike the admin queue it reserves the chosen
// worker: each assignment marks the worker busy and moves them to the
// request inside one transaction.
type Service struct {
	pool     TxBeginner
	requests request.Repository
	workers  staff.Repository
	outbox   OutboxWriter
	engine   *scheduler.Engine
	logger   *slog.Logger
}

// NewService wires a dispatcher. A nil engine uses the default campus
// distances.
func NewService(pool TxBeginner, requests request.Repository, workers staff.Repository, engine *scheduler.Engine) *Service {
	if engine == nil {
		engine = scheduler.NewEngine(nil)
	}
	return &Service{
		pool:     pool,
		requests: requests,
		workers:  workers,
		engine:   engine,
		logger:   slog.Default(),
	}
}

// WithOutbox records an event for every state change in the same transaction.
func (s *Service) WithOutbox(out OutboxWriter) *Service {
	s.outbox = out
	return s
}

// WithLogger replaces slog.Default.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// AssignNewRequest sends the closest eligible free worker to a pending
// request. The request stays pending when nobody is available.
func (s *Service) AssignNewRequest(ctx context.Context, requestID string) (Assignment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Assignment{}, fmt.Errorf("dispatch: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.requests.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return Assignment{}, err
	}
	if req.Status != request.StatusPending {
		return Assignment{}, ErrNotPending
	}

	free, err := s.workers.ListFreeForUpdate(ctx, tx, req.TaskType)
	if err != nil {
		return Assignment{}, err
	}
	candidates := slices.DeleteFunc(free, func(w staff.Worker) bool {
		return !GenderAllowed(req.Building, w.Gender)
	})

	best, ok := s.engine.BestFreeWorker(req, candidates)
	if !ok {
		s.logger.InfoContext(ctx, "request queued, no eligible free worker",
			"request_id", req.ID, "task_type", req.TaskType, "building", req.Building)
		return Assignment{}, ErrNoEligibleWorker
	}
	s.logger.InfoContext(ctx, "closest free worker found",
		"request_id", req.ID, "worker_id", best.ID, "worker", best.Name,
		"from_building", best.CurrentBuilding, "from_floor", best.CurrentLocationFloor,
		"candidates", len(candidates))

	assignment, err := s.assign(ctx, tx, req, best)
	if err != nil {
		return Assignment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Assignment{}, fmt.Errorf("dispatch: commit assignment: %w", err)
	}
	return assignment, nil
}

// AssignNextForWorker gives a free worker the best pending request of their
// task type, ranked by proximity and then age.
func (s *Service) AssignNextForWorker(ctx context.Context, workerID string) (Assignment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Assignment{}, fmt.Errorf("dispatch: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	w, err := s.workers.GetForUpdate(ctx, tx, workerID)
	if err != nil {
		return Assignment{}, err
	}
	if w.Status == staff.StatusBusy {
		s.logger.WarnContext(ctx, "refusing to assign busy worker", "worker_id", w.ID)
		return Assignment{}, staff.ErrBusy
	}

	assignment, err := s.assignNext(ctx, tx, w)
	if err != nil {
		return Assignment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Assignment{}, fmt.Errorf("dispatch: commit assignment: %w", err)
	}
	return assignment, nil
}

// CompleteByStaff closes a request on behalf of its assignee, frees the
// worker and tries to hand them the next request in the same transaction.
func (s *Service) CompleteByStaff(ctx context.Context, workerID, requestID string) (CompletionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("dispatch: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.requests.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return CompletionResult{}, err
	}
	if req.AssignedTo == nil || *req.AssignedTo != workerID {
		return CompletionResult{}, ErrNotAssignee
	}
	if req.Status != request.StatusInProgress {
		return CompletionResult{}, ErrNotInProgress
	}

	completed, err := s.requests.UpdateStatus(ctx, tx, req.ID, request.StatusCompleted)
	if err != nil {
		return CompletionResult{}, err
	}
	if _, err := s.workers.GetForUpdate(ctx, tx, workerID); err != nil {
		return CompletionResult{}, err
	}
	freed, err := s.workers.SetStatus(ctx, tx, workerID, staff.StatusFree)
	if err != nil {
		return CompletionResult{}, err
	}
	if err := s.publish(ctx, tx, OutboxTopicCompleted, completed, &freed); err != nil {
		return CompletionResult{}, err
	}

	result := CompletionResult{Request: completed}
	next, err := s.assignNext(ctx, tx, freed)
	switch {
	case err == nil:
		result.Next = &next
	case errors.Is(err, ErrNoPendingRequest):
	default:
		return CompletionResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CompletionResult{}, fmt.Errorf("dispatch: commit completion: %w", err)
	}
	return result, nil
}

// CompleteByAdmin closes any open request and frees its assignee without
// handing them new work.
func (s *Service) CompleteByAdmin(ctx context.Context, requestID string) (request.Request, error) {
	return s.close(ctx, requestID, request.StatusCompleted, OutboxTopicCompleted)
}

// Cancel withdraws an open request and frees its assignee.
func (s *Service) Cancel(ctx context.Context, requestID string) (request.Request, error) {
	return s.close(ctx, requestID, request.StatusCancelled, OutboxTopicCancelled)
}

func (s *Service) close(ctx context.Context, requestID string, status request.Status, topic string) (request.Request, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return request.Request{}, fmt.Errorf("dispatch: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.requests.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return request.Request{}, err
	}
	if req.Status.Terminal() {
		return request.Request{}, ErrAlreadyClosed
	}

	var freed *staff.Worker
	if req.AssignedTo != nil && req.Status == request.StatusInProgress {
		if _, err := s.workers.GetForUpdate(ctx, tx, *req.AssignedTo); err != nil {
			return request.Request{}, err
		}
		w, err := s.workers.SetStatus(ctx, tx, *req.AssignedTo, staff.StatusFree)
		if err != nil {
			return request.Request{}, err
		}
		freed = &w
	}

	closed, err := s.requests.UpdateStatus(ctx, tx, req.ID, status)
	if err != nil {
		return request.Request{}, err
	}
	if err := s.publish(ctx, tx, topic, closed, freed); err != nil {
		return request.Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return request.Request{}, fmt.Errorf("dispatch: commit close: %w", err)
	}
	return closed, nil
}

// Edit applies an administrator's edit under the request lock. Completing or
// cancelling frees the assignee as closing does. Moving an in-progress
// request back to pending, or changing its task type or location, releases
// the worker and clears the assignment.
func (s *Service) Edit(ctx context.Context, requestID string, params request.EditParams) (request.Request, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return request.Request{}, fmt.Errorf("dispatch: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.requests.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return request.Request{}, err
	}
	if req.Status.Terminal() {
		return request.Request{}, ErrAlreadyClosed
	}
	edited, err := params.Apply(req)
	if err != nil {
		return request.Request{}, err
	}
	if edited.Status == request.StatusInProgress && req.Status != request.StatusInProgress {
		return request.Request{}, ErrManualAssignment
	}

	relocated := edited.TaskType != req.TaskType || edited.Building != req.Building ||
		edited.Wing != req.Wing || edited.LocationFloor != req.LocationFloor

	var freed *staff.Worker
	if req.Status == request.StatusInProgress && req.AssignedTo != nil &&
		(edited.Status != request.StatusInProgress || relocated) {
		if _, err := s.workers.GetForUpdate(ctx, tx, *req.AssignedTo); err != nil {
			return request.Request{}, err
		}
		w, err := s.workers.SetStatus(ctx, tx, *req.AssignedTo, staff.StatusFree)
		if err != nil {
			return request.Request{}, err
		}
		freed = &w
		if !edited.Status.Terminal() {
			edited.Status = request.StatusPending
			edited.AssignedTo = nil
		}
		s.logger.InfoContext(ctx, "assignee released by edit",
			"request_id", req.ID, "worker_id", w.ID, "status", edited.Status)
	}

	saved, err := s.requests.Save(ctx, tx, edited)
	if err != nil {
		return request.Request{}, err
	}

	topic := OutboxTopicUpdated
	switch saved.Status {
	case request.StatusCompleted:
		topic = OutboxTopicCompleted
	case request.StatusCancelled:
		topic = OutboxTopicCancelled
	}
	if err := s.publish(ctx, tx, topic, saved, freed); err != nil {
		return request.Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return request.Request{}, fmt.Errorf("dispatch: commit edit: %w", err)
	}
	return saved, nil
}

func (s *Service) assignNext(ctx context.Context, tx pgx.Tx, w staff.Worker) (Assignment, error) {
	pending, err := s.requests.ListPendingForUpdate(ctx, tx, w.TaskType)
	if err != nil {
		return Assignment{}, err
	}
	pending = slices.DeleteFunc(pending, func(r request.Request) bool {
		return r.TaskType != w.TaskType || !GenderAllowed(r.Building, w.Gender)
	})
	if len(pending) == 0 {
		s.logger.InfoContext(ctx, "no eligible pending requests for worker",
			"worker_id", w.ID, "task_type", w.TaskType)
		return Assignment{}, ErrNoPendingRequest
	}

	next := slices.MinFunc(pending, func(a, b request.Request) int {
		if c := s.engine.Priority(a, w).Compare(s.engine.Priority(b, w)); c != 0 {
			return c
		}
		return a.RegistrationTime.Compare(b.RegistrationTime)
	})
	s.logger.InfoContext(ctx, "next request chosen for worker",
		"worker_id", w.ID, "request_id", next.ID, "eligible", len(pending))

	return s.assign(ctx, tx, next, w)
}

func (s *Service) assign(ctx context.Context, tx pgx.Tx, req request.Request, w staff.Worker) (Assignment, error) {
	moved, err := s.workers.MoveTo(ctx, tx, w.ID, staff.Location{
		Building: req.Building,
		Wing:     req.Wing,
		Floor:    req.LocationFloor,
	}, staff.StatusBusy)
	if err != nil {
		return Assignment{}, err
	}

	assigned, err := s.requests.Assign(ctx, tx, req.ID, moved.ID)
	if err != nil {
		return Assignment{}, err
	}
	if err := s.publish(ctx, tx, OutboxTopicAssigned, assigned, &moved); err != nil {
		return Assignment{}, err
	}
	return Assignment{Request: assigned, Worker: moved}, nil
}

func (s *Service) publish(ctx context.Context, tx pgx.Tx, topic string, req request.Request, w *staff.Worker) error {
	if s.outbox == nil {
		return nil
	}
	payload := map[string]any{
		"request_id": req.ID,
		"status":     req.Status,
		"task_type":  req.TaskType,
	}
	if w != nil {
		payload["worker_id"] = w.ID
	}
	if err := s.outbox.Enqueue(ctx, tx, topic, payload); err != nil {
		return fmt.Errorf("dispatch: enqueue %s: %w", topic, err)
	}
	return nil
}
