package dispatch

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"facilityflow/request"
	"facilityflow/staff"
)

type fakeRequests struct {
	items []request.Request
}

func (f *fakeRequests) index(id string) int {
	for i := range f.items {
		if f.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeRequests) Create(_ context.Context, _ pgx.Tx, req request.Request) (request.Request, error) {
	f.items = append(f.items, req)
	return req, nil
}

func (f *fakeRequests) ListAll(context.Context) ([]request.Request, error) {
	return append([]request.Request(nil), f.items...), nil
}

func (f *fakeRequests) ListBySubmitter(_ context.Context, userID string) ([]request.Request, error) {
	var out []request.Request
	for _, r := range f.items {
		if r.SubmittedBy != nil && *r.SubmittedBy == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequests) ListForWorker(_ context.Context, workerID string, taskType request.TaskType) ([]request.Request, error) {
	var out []request.Request
	for _, r := range f.items {
		if (r.AssignedTo != nil && *r.AssignedTo == workerID) || (r.Status == request.StatusPending && r.TaskType == taskType) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequests) Get(_ context.Context, id string) (request.Request, error) {
	if i := f.index(id); i >= 0 {
		return f.items[i], nil
	}
	return request.Request{}, request.ErrNotFound
}

func (f *fakeRequests) GetForUpdate(ctx context.Context, _ pgx.Tx, id string) (request.Request, error) {
	return f.Get(ctx, id)
}

func (f *fakeRequests) ListPendingForUpdate(_ context.Context, _ pgx.Tx, taskType request.TaskType) ([]request.Request, error) {
	var out []request.Request
	for _, r := range f.items {
		if r.Status == request.StatusPending && r.TaskType == taskType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequests) UpdateStatus(_ context.Context, _ pgx.Tx, id string, status request.Status) (request.Request, error) {
	i := f.index(id)
	if i < 0 {
		return request.Request{}, request.ErrNotFound
	}
	f.items[i].Status = status
	return f.items[i], nil
}

func (f *fakeRequests) Assign(_ context.Context, _ pgx.Tx, id, workerID string) (request.Request, error) {
	i := f.index(id)
	if i < 0 {
		return request.Request{}, request.ErrNotFound
	}
	f.items[i].Status = request.StatusInProgress
	f.items[i].AssignedTo = &workerID
	return f.items[i], nil
}

func (f *fakeRequests) Save(_ context.Context, _ pgx.Tx, req request.Request) (request.Request, error) {
	i := f.index(req.ID)
	if i < 0 {
		return request.Request{}, request.ErrNotFound
	}
	f.items[i] = req
	return req, nil
}

type fakeWorkers struct {
	items []staff.Worker
}

func (f *fakeWorkers) index(id string) int {
	for i := range f.items {
		if f.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeWorkers) Create(_ context.Context, params staff.CreateParams) (staff.Worker, error) {
	w := staff.Worker{
		ID:                   params.Name,
		Name:                 params.Name,
		TaskType:             params.TaskType,
		Gender:               params.Gender,
		CurrentBuilding:      params.Location.Building,
		CurrentWing:          params.Location.Wing,
		CurrentLocationFloor: params.Location.Floor,
		Status:               staff.StatusFree,
	}
	f.items = append(f.items, w)
	return w, nil
}

func (f *fakeWorkers) ListAll(context.Context) ([]staff.Worker, error) {
	return append([]staff.Worker(nil), f.items...), nil
}

func (f *fakeWorkers) Get(_ context.Context, id string) (staff.Worker, error) {
	if i := f.index(id); i >= 0 {
		return f.items[i], nil
	}
	return staff.Worker{}, staff.ErrNotFound
}

func (f *fakeWorkers) GetByUserID(_ context.Context, userID string) (staff.Worker, error) {
	for _, w := range f.items {
		if w.UserID != nil && *w.UserID == userID {
			return w, nil
		}
	}
	return staff.Worker{}, staff.ErrNotFound
}

func (f *fakeWorkers) GetForUpdate(ctx context.Context, _ pgx.Tx, id string) (staff.Worker, error) {
	return f.Get(ctx, id)
}

func (f *fakeWorkers) ListFreeForUpdate(_ context.Context, _ pgx.Tx, taskType request.TaskType) ([]staff.Worker, error) {
	var out []staff.Worker
	for _, w := range f.items {
		if w.Status == staff.StatusFree && w.TaskType == taskType {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWorkers) SetStatus(_ context.Context, _ pgx.Tx, id string, status staff.Status) (staff.Worker, error) {
	i := f.index(id)
	if i < 0 {
		return staff.Worker{}, staff.ErrNotFound
	}
	f.items[i].Status = status
	return f.items[i], nil
}

func (f *fakeWorkers) MoveTo(_ context.Context, _ pgx.Tx, id string, loc staff.Location, status staff.Status) (staff.Worker, error) {
	i := f.index(id)
	if i < 0 {
		return staff.Worker{}, staff.ErrNotFound
	}
	f.items[i].CurrentBuilding = loc.Building
	f.items[i].CurrentWing = loc.Wing
	f.items[i].CurrentLocationFloor = loc.Floor
	f.items[i].Status = status
	return f.items[i], nil
}

func (f *fakeWorkers) Delete(_ context.Context, _ pgx.Tx, id string) (staff.Worker, error) {
	i := f.index(id)
	if i < 0 {
		return staff.Worker{}, staff.ErrNotFound
	}
	w := f.items[i]
	f.items = append(f.items[:i], f.items[i+1:]...)
	return w, nil
}

type outboxEvent struct {
	topic   string
	payload map[string]any
}

type fakeOutbox struct {
	events []outboxEvent
	err    error
}

func (f *fakeOutbox) Enqueue(_ context.Context, _ pgx.Tx, topic string, payload map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, outboxEvent{topic: topic, payload: payload})
	return nil
}

func (f *fakeOutbox) topics() []string {
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.topic
	}
	return out
}

var t0 = time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

func newRequest(id string, task request.TaskType, building, wing string, floor, minute int) request.Request {
	return request.Request{
		ID:               id,
		TaskType:         task,
		Building:         building,
		Wing:             wing,
		LocationFloor:    floor,
		Status:           request.StatusPending,
		RegistrationTime: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func newWorker(id string, task request.TaskType, gender staff.Gender, building, wing string, floor int) staff.Worker {
	return staff.Worker{
		ID:                   id,
		Name:                 "Worker " + id,
		TaskType:             task,
		Gender:               gender,
		CurrentBuilding:      building,
		CurrentWing:          wing,
		CurrentLocationFloor: floor,
		Status:               staff.StatusFree,
	}
}
