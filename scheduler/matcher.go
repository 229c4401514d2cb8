package scheduler

import (
	"facilityflow/request"
	"facilityflow/staff"
)

// Eligible reports whether w may be matched to req: free and of exactly the
// same task type.
func Eligible(req request.Request, w staff.Worker) bool {
	return w.Status == staff.StatusFree && w.TaskType == req.TaskType
}

// BestFreeWorker returns the eligible worker with the lowest priority key.
// Ties go to the worker listed first. The worker is not reserved.
func (e *Engine) BestFreeWorker(req request.Request, workers []staff.Worker) (staff.Worker, bool) {
	w, _, ok := e.bestFreeWorker(req, workers)
	return w, ok
}

func (e *Engine) bestFreeWorker(req request.Request, workers []staff.Worker) (staff.Worker, PriorityKey, bool) {
	var (
		best    staff.Worker
		bestKey PriorityKey
		found   bool
	)
	for _, w := range workers {
		if !Eligible(req, w) {
			continue
		}
		key := e.Priority(req, w)
		if !found || key.Compare(bestKey) < 0 {
			best, bestKey, found = w, key, true
		}
	}
	return best, bestKey, found
}
