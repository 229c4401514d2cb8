package scheduler

import (
	"slices"

	"facilityflow/request"
	"facilityflow/staff"
)

// Ranked is one entry of the admin queue. Worker is the best free worker for
// a pending request and nil when none is eligible or the request is not
// pending.
type Ranked struct {
	Request request.Request
	Worker  *staff.Worker
	Key     PriorityKey
}

// Matched reports whether a best worker was found.
func (r Ranked) Matched() bool {
	return r.Worker != nil
}

// Order returns the requests in admin display order: pending requests ranked
// by their best achievable match, then every other request in input order.
func (e *Engine) Order(requests []request.Request, workers []staff.Worker) []request.Request {
	ranked := e.Rank(requests, workers)
	out := make([]request.Request, len(ranked))
	for i, r := range ranked {
		out[i] = r.Request
	}
	return out
}

// Rank is Order with each pending request's best match attached. Matches are
// computed independently per request, so two requests can share a worker.
func (e *Engine) Rank(requests []request.Request, workers []staff.Worker) []Ranked {
	pending := make([]Ranked, 0, len(requests))
	others := make([]Ranked, 0)
	for _, req := range requests {
		if req.Status != request.StatusPending {
			others = append(others, Ranked{Request: req})
			continue
		}
		entry := Ranked{Request: req}
		if w, key, ok := e.bestFreeWorker(req, workers); ok {
			entry.Worker = &w
			entry.Key = key
		}
		pending = append(pending, entry)
	}

	slices.SortStableFunc(pending, compareRanked)
	return append(pending, others...)
}

// compareRanked falls back to registration time for the pair whenever either
// side has no match, even if the other side has one.
func compareRanked(a, b Ranked) int {
	if !a.Matched() || !b.Matched() {
		return a.Request.RegistrationTime.Compare(b.Request.RegistrationTime)
	}
	if c := a.Key.Compare(b.Key); c != 0 {
		return c
	}
	return a.Request.RegistrationTime.Compare(b.Request.RegistrationTime)
}
