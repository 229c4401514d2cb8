package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"facilityflow/request"
	"facilityflow/staff"
	"facilityflow/test/fakes"
)

type fixture struct {
	pool     *fakes.Pool
	requests *fakeRequests
	workers  *fakeWorkers
	outbox   *fakeOutbox
	svc      *Service
}

func newFixture(reqs []request.Request, workers []staff.Worker) *fixture {
	f := &fixture{
		pool:     &fakes.Pool{},
		requests: &fakeRequests{items: reqs},
		workers:  &fakeWorkers{items: workers},
		outbox:   &fakeOutbox{},
	}
	f.svc = NewService(f.pool, f.requests, f.workers, nil).
		WithOutbox(f.outbox).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func TestGenderAllowed(t *testing.T) {
	tests := []struct {
		building string
		gender   staff.Gender
		want     bool
	}{
		{request.BuildingBoysOld, staff.GenderMale, true},
		{request.BuildingBoysH1, staff.GenderFemale, false},
		{request.BuildingGirlsHostel, staff.GenderFemale, true},
		{request.BuildingGirlsHostel, staff.GenderMale, false},
		{request.BuildingLibrary, staff.GenderFemale, true},
		{request.BuildingGuestHouse, staff.GenderMale, true},
	}
	for _, tt := range tests {
		if got := GenderAllowed(tt.building, tt.gender); got != tt.want {
			t.Errorf("GenderAllowed(%s, %s): expected %v got %v", tt.building, tt.gender, tt.want, got)
		}
	}
}

func TestAssignNewRequest_PicksClosestAllowedWorker(t *testing.T) {
	f := newFixture(
		[]request.Request{newRequest("r1", request.TaskPlumbing, request.BuildingGirlsHostel, "A", 2, 0)},
		[]staff.Worker{
			newWorker("male-here", request.TaskPlumbing, staff.GenderMale, request.BuildingGirlsHostel, "A", 2),
			newWorker("female-far", request.TaskPlumbing, staff.GenderFemale, request.BuildingRnD, "", 1),
			newWorker("female-near", request.TaskPlumbing, staff.GenderFemale, request.BuildingLHC, "", 1),
		},
	)

	got, err := f.svc.AssignNewRequest(context.Background(), "r1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.Worker.ID != "female-near" {
		t.Fatalf("expected female-near got %s", got.Worker.ID)
	}
	if got.Worker.Status != staff.StatusBusy || got.Worker.CurrentBuilding != request.BuildingGirlsHostel ||
		got.Worker.CurrentWing != "A" || got.Worker.CurrentLocationFloor != 2 {
		t.Fatalf("expected worker moved to request and busy, got %+v", got.Worker)
	}
	if got.Request.Status != request.StatusInProgress || got.Request.AssignedTo == nil || *got.Request.AssignedTo != "female-near" {
		t.Fatalf("unexpected request state: %+v", got.Request)
	}
	if tx := f.pool.Last(); tx == nil || !tx.Committed {
		t.Fatalf("expected commit")
	}
	if diff := cmp.Diff([]string{OutboxTopicAssigned}, f.outbox.topics()); diff != "" {
		t.Fatalf("unexpected outbox topics (-want +got):\n%s", diff)
	}
}

func TestAssignNewRequest_NoEligibleWorker(t *testing.T) {
	busy := newWorker("busy", request.TaskWater, staff.GenderMale, request.BuildingLHC, "", 1)
	busy.Status = staff.StatusBusy
	f := newFixture(
		[]request.Request{newRequest("r1", request.TaskWater, request.BuildingBoysH2, "", 3, 0)},
		[]staff.Worker{
			busy,
			newWorker("female", request.TaskWater, staff.GenderFemale, request.BuildingBoysH2, "", 3),
			newWorker("wrong-type", request.TaskPest, staff.GenderMale, request.BuildingBoysH2, "", 3),
		},
	)

	_, err := f.svc.AssignNewRequest(context.Background(), "r1")
	if !errors.Is(err, ErrNoEligibleWorker) {
		t.Fatalf("expected ErrNoEligibleWorker, got %v", err)
	}
	if f.requests.items[0].Status != request.StatusPending {
		t.Fatalf("request should stay pending")
	}
	if tx := f.pool.Last(); tx.Committed || !tx.RolledBack {
		t.Fatalf("expected rollback without commit")
	}
	if len(f.outbox.events) != 0 {
		t.Fatalf("expected no outbox events, got %v", f.outbox.topics())
	}
}

func TestAssignNewRequest_NotPending(t *testing.T) {
	r := newRequest("r1", request.TaskWater, request.BuildingLHC, "", 1, 0)
	r.Status = request.StatusCompleted
	f := newFixture([]request.Request{r}, nil)

	if _, err := f.svc.AssignNewRequest(context.Background(), "r1"); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if _, err := f.svc.AssignNewRequest(context.Background(), "missing"); !errors.Is(err, request.ErrNotFound) {
		t.Fatalf("expected request.ErrNotFound, got %v", err)
	}
}

func TestAssignNextForWorker_RanksByProximityThenAge(t *testing.T) {
	f := newFixture(
		[]request.Request{
			newRequest("old-far", request.TaskCleaning, request.BuildingRnD, "", 1, 0),
			newRequest("girls", request.TaskCleaning, request.BuildingGirlsHostel, "", 1, 1),
			newRequest("near-newer", request.TaskCleaning, request.BuildingAcademic, "B", 2, 20),
			newRequest("near-older", request.TaskCleaning, request.BuildingAcademic, "B", 2, 10),
			newRequest("other-type", request.TaskPest, request.BuildingAcademic, "B", 2, 0),
		},
		[]staff.Worker{newWorker("w1", request.TaskCleaning, staff.GenderMale, request.BuildingAcademic, "B", 2)},
	)

	got, err := f.svc.AssignNextForWorker(context.Background(), "w1")
	if err != nil {
		t.Fatalf("assign next: %v", err)
	}
	if got.Request.ID != "near-older" {
		t.Fatalf("expected near-older got %s", got.Request.ID)
	}
}

func TestAssignNextForWorker_BusyAndEmpty(t *testing.T) {
	busy := newWorker("busy", request.TaskCleaning, staff.GenderMale, request.BuildingLHC, "", 1)
	busy.Status = staff.StatusBusy
	f := newFixture(
		[]request.Request{newRequest("girls", request.TaskCleaning, request.BuildingGirlsHostel, "", 1, 0)},
		[]staff.Worker{busy, newWorker("male", request.TaskCleaning, staff.GenderMale, request.BuildingLHC, "", 1)},
	)

	if _, err := f.svc.AssignNextForWorker(context.Background(), "busy"); !errors.Is(err, staff.ErrBusy) {
		t.Fatalf("expected staff.ErrBusy, got %v", err)
	}
	if _, err := f.svc.AssignNextForWorker(context.Background(), "male"); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("expected ErrNoPendingRequest, got %v", err)
	}
}

func TestCompleteByStaff_FreesAndReassigns(t *testing.T) {
	workerID := "w1"
	current := newRequest("current", request.TaskElectrical, request.BuildingLibrary, "", 3, 0)
	current.Status = request.StatusInProgress
	current.AssignedTo = &workerID

	w := newWorker(workerID, request.TaskElectrical, staff.GenderFemale, request.BuildingLibrary, "", 3)
	w.Status = staff.StatusBusy

	f := newFixture(
		[]request.Request{
			current,
			newRequest("boys", request.TaskElectrical, request.BuildingBoysOld, "", 1, 1),
			newRequest("rnd", request.TaskElectrical, request.BuildingRnD, "", 1, 2),
		},
		[]staff.Worker{w},
	)

	res, err := f.svc.CompleteByStaff(context.Background(), workerID, "current")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Request.Status != request.StatusCompleted {
		t.Fatalf("expected completed, got %s", res.Request.Status)
	}
	if res.Next == nil || res.Next.Request.ID != "rnd" {
		t.Fatalf("expected next assignment rnd, got %+v", res.Next)
	}
	if f.workers.items[0].Status != staff.StatusBusy || f.workers.items[0].CurrentBuilding != request.BuildingRnD {
		t.Fatalf("expected worker busy at rnd, got %+v", f.workers.items[0])
	}
	if diff := cmp.Diff([]string{OutboxTopicCompleted, OutboxTopicAssigned}, f.outbox.topics()); diff != "" {
		t.Fatalf("unexpected outbox topics (-want +got):\n%s", diff)
	}
}

func TestCompleteByStaff_NoNextTaskLeavesWorkerFree(t *testing.T) {
	workerID := "w1"
	current := newRequest("current", request.TaskElectrical, request.BuildingLibrary, "", 3, 0)
	current.Status = request.StatusInProgress
	current.AssignedTo = &workerID
	w := newWorker(workerID, request.TaskElectrical, staff.GenderMale, request.BuildingLibrary, "", 3)
	w.Status = staff.StatusBusy

	f := newFixture([]request.Request{current}, []staff.Worker{w})

	res, err := f.svc.CompleteByStaff(context.Background(), workerID, "current")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Next != nil {
		t.Fatalf("expected no next assignment, got %+v", res.Next)
	}
	if f.workers.items[0].Status != staff.StatusFree {
		t.Fatalf("expected worker free")
	}
	if !f.pool.Last().Committed {
		t.Fatalf("expected commit")
	}
}

func TestCompleteByStaff_Guards(t *testing.T) {
	owner := "owner"
	assigned := newRequest("assigned", request.TaskWater, request.BuildingLHC, "", 1, 0)
	assigned.Status = request.StatusInProgress
	assigned.AssignedTo = &owner
	pending := newRequest("pending", request.TaskWater, request.BuildingLHC, "", 1, 0)
	pending.AssignedTo = &owner

	f := newFixture([]request.Request{assigned, pending}, nil)

	if _, err := f.svc.CompleteByStaff(context.Background(), "intruder", "assigned"); !errors.Is(err, ErrNotAssignee) {
		t.Fatalf("expected ErrNotAssignee, got %v", err)
	}
	if _, err := f.svc.CompleteByStaff(context.Background(), owner, "pending"); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress, got %v", err)
	}
}

func TestCompleteByAdminAndCancel(t *testing.T) {
	workerID := "w1"
	inProgress := newRequest("busy-req", request.TaskPest, request.BuildingLHC, "", 1, 0)
	inProgress.Status = request.StatusInProgress
	inProgress.AssignedTo = &workerID
	w := newWorker(workerID, request.TaskPest, staff.GenderMale, request.BuildingLHC, "", 1)
	w.Status = staff.StatusBusy

	f := newFixture(
		[]request.Request{inProgress, newRequest("queued", request.TaskPest, request.BuildingLibrary, "", 1, 5)},
		[]staff.Worker{w},
	)

	done, err := f.svc.CompleteByAdmin(context.Background(), "busy-req")
	if err != nil {
		t.Fatalf("admin complete: %v", err)
	}
	if done.Status != request.StatusCompleted {
		t.Fatalf("expected completed got %s", done.Status)
	}
	if f.workers.items[0].Status != staff.StatusFree {
		t.Fatalf("expected assignee freed")
	}
	if f.requests.items[1].Status != request.StatusPending {
		t.Fatalf("admin completion must not dispatch the next request")
	}

	cancelled, err := f.svc.Cancel(context.Background(), "queued")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != request.StatusCancelled {
		t.Fatalf("expected cancelled got %s", cancelled.Status)
	}

	if _, err := f.svc.Cancel(context.Background(), "queued"); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
	if diff := cmp.Diff([]string{OutboxTopicCompleted, OutboxTopicCancelled}, f.outbox.topics()); diff != "" {
		t.Fatalf("unexpected outbox topics (-want +got):\n%s", diff)
	}
}

func TestAssignNewRequest_OutboxFailureAborts(t *testing.T) {
	f := newFixture(
		[]request.Request{newRequest("r1", request.TaskOther, request.BuildingLHC, "", 1, 0)},
		[]staff.Worker{newWorker("w1", request.TaskOther, staff.GenderMale, request.BuildingLHC, "", 1)},
	)
	f.outbox.err = errors.New("boom")

	if _, err := f.svc.AssignNewRequest(context.Background(), "r1"); err == nil {
		t.Fatal("expected error when outbox write fails")
	}
	if f.pool.Last().Committed {
		t.Fatal("transaction must not commit")
	}
}

func TestEdit_RelocatingInProgressReleasesWorker(t *testing.T) {
	workerID := "w1"
	current := newRequest("r1", request.TaskPlumbing, request.BuildingLHC, "", 2, 0)
	current.Status = request.StatusInProgress
	current.AssignedTo = &workerID
	w := newWorker(workerID, request.TaskPlumbing, staff.GenderMale, request.BuildingLHC, "", 2)
	w.Status = staff.StatusBusy
	f := newFixture([]request.Request{current}, []staff.Worker{w})

	building := request.BuildingLibrary
	got, err := f.svc.Edit(context.Background(), "r1", request.EditParams{Building: &building})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got.Status != request.StatusPending || got.AssignedTo != nil || got.Building != request.BuildingLibrary {
		t.Fatalf("expected relocated request back in the queue, got %+v", got)
	}
	if f.workers.items[0].Status != staff.StatusFree {
		t.Fatalf("expected worker freed")
	}
	if diff := cmp.Diff([]string{OutboxTopicUpdated}, f.outbox.topics()); diff != "" {
		t.Fatalf("unexpected outbox topics (-want +got):\n%s", diff)
	}
	if !f.pool.Last().Committed {
		t.Fatalf("expected commit")
	}
}

func TestEdit_DescriptionKeepsAssignment(t *testing.T) {
	workerID := "w1"
	current := newRequest("r1", request.TaskPlumbing, request.BuildingLHC, "", 2, 0)
	current.Status = request.StatusInProgress
	current.AssignedTo = &workerID
	w := newWorker(workerID, request.TaskPlumbing, staff.GenderMale, request.BuildingLHC, "", 2)
	w.Status = staff.StatusBusy
	f := newFixture([]request.Request{current}, []staff.Worker{w})

	desc := "tap in washroom 2"
	got, err := f.svc.Edit(context.Background(), "r1", request.EditParams{Description: &desc})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got.Status != request.StatusInProgress || got.AssignedTo == nil || got.Description != desc {
		t.Fatalf("unexpected request after edit: %+v", got)
	}
	if f.workers.items[0].Status != staff.StatusBusy {
		t.Fatalf("worker must stay busy")
	}
}

func TestEdit_StatusChanges(t *testing.T) {
	workerID := "w1"
	current := newRequest("busy-req", request.TaskPest, request.BuildingLHC, "", 1, 0)
	current.Status = request.StatusInProgress
	current.AssignedTo = &workerID
	w := newWorker(workerID, request.TaskPest, staff.GenderMale, request.BuildingLHC, "", 1)
	w.Status = staff.StatusBusy
	f := newFixture(
		[]request.Request{current, newRequest("queued", request.TaskPest, request.BuildingLHC, "", 1, 5)},
		[]staff.Worker{w},
	)

	inProgress := request.StatusInProgress
	if _, err := f.svc.Edit(context.Background(), "queued", request.EditParams{Status: &inProgress}); !errors.Is(err, ErrManualAssignment) {
		t.Fatalf("expected ErrManualAssignment, got %v", err)
	}
	floor := 9
	if _, err := f.svc.Edit(context.Background(), "queued", request.EditParams{LocationFloor: &floor}); !errors.Is(err, request.ErrInvalidFloor) {
		t.Fatalf("expected request.ErrInvalidFloor, got %v", err)
	}

	completed := request.StatusCompleted
	done, err := f.svc.Edit(context.Background(), "busy-req", request.EditParams{Status: &completed})
	if err != nil {
		t.Fatalf("edit to completed: %v", err)
	}
	if done.Status != request.StatusCompleted || done.AssignedTo == nil || *done.AssignedTo != workerID {
		t.Fatalf("completed request keeps its assignee, got %+v", done)
	}
	if f.workers.items[0].Status != staff.StatusFree {
		t.Fatalf("expected assignee freed")
	}
	if f.requests.items[1].Status != request.StatusPending {
		t.Fatalf("edit must not dispatch the next request")
	}

	if _, err := f.svc.Edit(context.Background(), "busy-req", request.EditParams{Status: &completed}); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
	if diff := cmp.Diff([]string{OutboxTopicCompleted}, f.outbox.topics()); diff != "" {
		t.Fatalf("unexpected outbox topics (-want +got):\n%s", diff)
	}
}
