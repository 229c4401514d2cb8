// Package admin serves the admin view of the request queue.
package admin

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"facilityflow/request"
	"facilityflow/scheduler"
	"facilityflow/staff"
)

// RequestLister reads the full request list.
type RequestLister interface {
	ListAll(ctx context.Context) ([]request.Request, error)
	Get(ctx context.Context, id string) (request.Request, error)
}

// WorkerLister reads the full worker roster.
type WorkerLister interface {
	ListAll(ctx context.Context) ([]staff.Worker, error)
}

// QueueService ranks the pending queue for admins. It fetches both snapshots
// on every call and keeps no state between calls.
type QueueService struct {
	requests RequestLister
	workers  WorkerLister
	engine   *scheduler.Engine
}

func NewQueueService(requests RequestLister, workers WorkerLister, engine *scheduler.Engine) *QueueService {
	if engine == nil {
		engine = scheduler.NewEngine(nil)
	}
	return &QueueService{requests: requests, workers: workers, engine: engine}
}

// Queue returns every request in admin display order with the best free
// worker of each pending request.
func (s *QueueService) Queue(ctx context.Context) ([]scheduler.Ranked, error) {
	var (
		requests []request.Request
		workers  []staff.Worker
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		requests, err = s.requests.ListAll(gctx)
		if err != nil {
			return fmt.Errorf("admin: list requests: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		workers, err = s.workers.ListAll(gctx)
		if err != nil {
			return fmt.Errorf("admin: list workers: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.engine.Rank(requests, workers), nil
}

// BestWorker reports the best free worker for one request, if any.
func (s *QueueService) BestWorker(ctx context.Context, requestID string) (request.Request, *staff.Worker, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return request.Request{}, nil, err
	}
	workers, err := s.workers.ListAll(ctx)
	if err != nil {
		return request.Request{}, nil, fmt.Errorf("admin: list workers: %w", err)
	}

	w, ok := s.engine.BestFreeWorker(req, workers)
	if !ok {
		return req, nil, nil
	}
	return req, &w, nil
}
