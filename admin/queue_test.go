package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"facilityflow/request"
	"facilityflow/staff"
)

type stubRequests struct {
	items []request.Request
	err   error
}

func (s *stubRequests) ListAll(context.Context) ([]request.Request, error) {
	return s.items, s.err
}

func (s *stubRequests) Get(_ context.Context, id string) (request.Request, error) {
	for _, r := range s.items {
		if r.ID == id {
			return r, nil
		}
	}
	return request.Request{}, request.ErrNotFound
}

type stubWorkers struct {
	items []staff.Worker
	err   error
}

func (s *stubWorkers) ListAll(context.Context) ([]staff.Worker, error) {
	return s.items, s.err
}

var now = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func fixtures() (*stubRequests, *stubWorkers) {
	requests := &stubRequests{items: []request.Request{
		{ID: "done", TaskType: request.TaskPlumbing, Building: "lhc", LocationFloor: 1, Status: request.StatusCompleted, RegistrationTime: now.Add(-time.Hour)},
		{ID: "1", TaskType: request.TaskPlumbing, Building: "lhc", Wing: "A", LocationFloor: 2, Status: request.StatusPending, RegistrationTime: now},
		{ID: "2", TaskType: request.TaskPlumbing, Building: "library", Wing: "A", LocationFloor: 2, Status: request.StatusPending, RegistrationTime: now.Add(-time.Minute)},
	}}
	workers := &stubWorkers{items: []staff.Worker{
		{ID: "10", Name: "Asha", TaskType: request.TaskPlumbing, CurrentBuilding: "lhc", CurrentWing: "A", CurrentLocationFloor: 2, Status: staff.StatusFree},
	}}
	return requests, workers
}

func TestQueueService_Queue(t *testing.T) {
	reqs, workers := fixtures()
	svc := NewQueueService(reqs, workers, nil)

	ranked, err := svc.Queue(context.Background())
	if err != nil {
		t.Fatalf("queue: %v", err)
	}

	got := make([]string, len(ranked))
	for i, r := range ranked {
		got[i] = r.Request.ID
	}
	if diff := cmp.Diff([]string{"1", "2", "done"}, got); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if ranked[0].Worker == nil || ranked[0].Worker.ID != "10" {
		t.Fatalf("expected worker 10 for request 1, got %+v", ranked[0].Worker)
	}
	if ranked[2].Worker != nil {
		t.Fatalf("completed request must not carry a match")
	}
}

func TestQueueService_QueueErrors(t *testing.T) {
	reqs, workers := fixtures()
	workers.err = errors.New("roster down")

	if _, err := NewQueueService(reqs, workers, nil).Queue(context.Background()); err == nil {
		t.Fatal("expected error when roster fetch fails")
	}

	reqs.err = errors.New("db down")
	workers.err = nil
	if _, err := NewQueueService(reqs, workers, nil).Queue(context.Background()); err == nil {
		t.Fatal("expected error when request fetch fails")
	}
}

func TestQueueService_BestWorker(t *testing.T) {
	reqs, workers := fixtures()
	svc := NewQueueService(reqs, workers, nil)

	req, w, err := svc.BestWorker(context.Background(), "2")
	if err != nil {
		t.Fatalf("best worker: %v", err)
	}
	if req.ID != "2" || w == nil || w.ID != "10" {
		t.Fatalf("unexpected result: %+v %+v", req, w)
	}

	workers.items[0].Status = staff.StatusBusy
	if _, w, err := svc.BestWorker(context.Background(), "2"); err != nil || w != nil {
		t.Fatalf("expected no worker, got %+v (err=%v)", w, err)
	}

	if _, _, err := svc.BestWorker(context.Background(), "missing"); !errors.Is(err, request.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
