package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"facilityflow/auth"
	"facilityflow/dispatch"
	"facilityflow/request"
	"facilityflow/scheduler"
	"facilityflow/staff"
)

type requestResponse struct {
	ID               string  `json:"id"`
	TaskType         string  `json:"taskType"`
	Building         string  `json:"building"`
	Wing             string  `json:"wing,omitempty"`
	Floor            int     `json:"floor"`
	Description      string  `json:"description,omitempty"`
	Status           string  `json:"status"`
	RegistrationTime string  `json:"registrationTime"`
	AssignedTo       *string `json:"assignedTo,omitempty"`
	AssignedToName   *string `json:"assignedToName,omitempty"`
}

func toRequestResponse(req request.Request) requestResponse {
	return requestResponse{
		ID:               req.ID,
		TaskType:         string(req.TaskType),
		Building:         req.Building,
		Wing:             req.Wing,
		Floor:            req.LocationFloor,
		Description:      req.Description,
		Status:           string(req.Status),
		RegistrationTime: req.RegistrationTime.UTC().Format(time.RFC3339),
		AssignedTo:       req.AssignedTo,
		AssignedToName:   req.AssignedToName,
	}
}

type workerResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TaskType string `json:"taskType"`
	Gender   string `json:"gender"`
	Building string `json:"building"`
	Wing     string `json:"wing,omitempty"`
	Floor    int    `json:"floor"`
	Status   string `json:"status"`
}

func toWorkerResponse(w staff.Worker) workerResponse {
	return workerResponse{
		ID:       w.ID,
		Name:     w.Name,
		TaskType: string(w.TaskType),
		Gender:   string(w.Gender),
		Building: w.CurrentBuilding,
		Wing:     w.CurrentWing,
		Floor:    w.CurrentLocationFloor,
		Status:   string(w.Status),
	}
}

type priorityResponse struct {
	BuildingDistance int `json:"buildingDistance"`
	WingMismatch     int `json:"wingMismatch"`
	FloorDistance    int `json:"floorDistance"`
}

type queueEntryResponse struct {
	Request    requestResponse   `json:"request"`
	BestWorker *workerResponse   `json:"bestWorker,omitempty"`
	Priority   *priorityResponse `json:"priority,omitempty"`
}

func toQueueEntry(r scheduler.Ranked) queueEntryResponse {
	entry := queueEntryResponse{Request: toRequestResponse(r.Request)}
	if r.Matched() {
		w := toWorkerResponse(*r.Worker)
		entry.BestWorker = &w
		entry.Priority = &priorityResponse{
			BuildingDistance: r.Key.BuildingDistance,
			WingMismatch:     r.Key.WingMismatch,
			FloorDistance:    r.Key.FloorDistance,
		}
	}
	return entry
}

type assignmentResponse struct {
	Request requestResponse `json:"request"`
	Worker  workerResponse  `json:"worker"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body auth.RegisterRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Self-registration is limited to students; staff accounts are created by admins.
	body.Role = auth.RoleStudent

	user, err := s.authService.Register(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":       user.ID,
		"username": user.Username,
		"role":     string(user.Role),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body auth.LoginRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.authService.Login(r.Context(), body)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     res.Token,
		"expiresAt": res.ExpiresAt.UTC().Format(time.RFC3339),
		"user": map[string]string{
			"id":       res.User.ID,
			"username": res.User.Username,
			"fullName": res.User.FullName,
			"role":     string(res.User.Role),
		},
	})
}

type createRequestBody struct {
	TaskType    string `json:"taskType"`
	Building    string `json:"building"`
	Wing        string `json:"wing"`
	Floor       int    `json:"floor"`
	Description string `json:"description"`
}

// handleCreateRequest records the request and tries to dispatch it at once.
// A request with no eligible worker stays pending and is still accepted.
func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.requestService.Create(r.Context(), request.CreateParams{
		SubmittedBy:   userIDFromContext(r.Context()),
		TaskType:      request.TaskType(strings.TrimSpace(body.TaskType)),
		Building:      strings.TrimSpace(body.Building),
		Wing:          body.Wing,
		LocationFloor: body.Floor,
		Description:   body.Description,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	assignment, err := s.dispatchService.AssignNewRequest(r.Context(), created.ID)
	switch {
	case err == nil:
		created = assignment.Request
	case errors.Is(err, dispatch.ErrNoEligibleWorker):
	default:
		s.log().Error("dispatch new request", "request_id", created.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, toRequestResponse(created))
}

func (s *Server) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	items, err := s.requestService.ListBySubmitter(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]requestResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toRequestResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (s *Server) currentWorker(w http.ResponseWriter, r *http.Request) (staff.Worker, bool) {
	worker, err := s.staffService.GetByUserID(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, staff.ErrNotFound) {
			writeError(w, http.StatusForbidden, "account is not linked to a worker")
			return staff.Worker{}, false
		}
		s.writeServiceError(w, r, err)
		return staff.Worker{}, false
	}
	return worker, true
}

func (s *Server) handleStaffMe(w http.ResponseWriter, r *http.Request) {
	worker, ok := s.currentWorker(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toWorkerResponse(worker))
}

// handleStaffTasks lists the worker's own requests and the pending requests
// of their task type.
func (s *Server) handleStaffTasks(w http.ResponseWriter, r *http.Request) {
	worker, ok := s.currentWorker(w, r)
	if !ok {
		return
	}

	items, err := s.requestService.ListForWorker(r.Context(), worker.ID, worker.TaskType)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]requestResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toRequestResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (s *Server) handleStaffComplete(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "missing request id")
		return
	}
	worker, ok := s.currentWorker(w, r)
	if !ok {
		return
	}

	res, err := s.dispatchService.CompleteByStaff(r.Context(), worker.ID, requestID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	payload := map[string]any{"request": toRequestResponse(res.Request)}
	if res.Next != nil {
		payload["next"] = assignmentResponse{
			Request: toRequestResponse(res.Next.Request),
			Worker:  toWorkerResponse(res.Next.Worker),
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

type locationBody struct {
	Building string `json:"building"`
	Wing     string `json:"wing"`
	Floor    int    `json:"floor"`
}

func (s *Server) handleStaffLocation(w http.ResponseWriter, r *http.Request) {
	var body locationBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	worker, ok := s.currentWorker(w, r)
	if !ok {
		return
	}

	updated, err := s.staffService.UpdateLocation(r.Context(), worker.ID, staff.Location{
		Building: strings.TrimSpace(body.Building),
		Wing:     body.Wing,
		Floor:    body.Floor,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerResponse(updated))
}

func (s *Server) handleAdminQueue(w http.ResponseWriter, r *http.Request) {
	ranked, err := s.queueService.Queue(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]queueEntryResponse, 0, len(ranked))
	for _, entry := range ranked {
		out = append(out, toQueueEntry(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (s *Server) handleBestWorker(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "missing request id")
		return
	}

	req, worker, err := s.queueService.BestWorker(r.Context(), requestID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	payload := map[string]any{"request": toRequestResponse(req), "bestWorker": nil}
	if worker != nil {
		payload["bestWorker"] = toWorkerResponse(*worker)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleAdminComplete(w http.ResponseWriter, r *http.Request) {
	s.closeRequest(w, r, s.dispatchService.CompleteByAdmin)
}

func (s *Server) handleAdminCancel(w http.ResponseWriter, r *http.Request) {
	s.closeRequest(w, r, s.dispatchService.Cancel)
}

func (s *Server) closeRequest(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (request.Request, error)) {
	requestID := r.PathValue("id")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "missing request id")
		return
	}

	closed, err := op(r.Context(), requestID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(closed))
}

type editRequestBody struct {
	TaskType    *string `json:"taskType"`
	Building    *string `json:"building"`
	Wing        *string `json:"wing"`
	Floor       *int    `json:"floor"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

func (b editRequestBody) params() request.EditParams {
	var p request.EditParams
	if b.TaskType != nil {
		t := request.TaskType(strings.TrimSpace(*b.TaskType))
		p.TaskType = &t
	}
	if b.Building != nil {
		building := strings.TrimSpace(*b.Building)
		p.Building = &building
	}
	if b.Status != nil {
		status := request.Status(strings.TrimSpace(*b.Status))
		p.Status = &status
	}
	p.Wing, p.LocationFloor, p.Description = b.Wing, b.Floor, b.Description
	return p
}

// handleAdminEdit applies a partial edit. A request left pending by the edit
// is offered to the closest eligible worker, as on creation.
func (s *Server) handleAdminEdit(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "missing request id")
		return
	}
	var body editRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	edited, err := s.dispatchService.Edit(r.Context(), requestID, body.params())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if edited.Status == request.StatusPending {
		assignment, err := s.dispatchService.AssignNewRequest(r.Context(), edited.ID)
		switch {
		case err == nil:
			edited = assignment.Request
		case errors.Is(err, dispatch.ErrNoEligibleWorker), errors.Is(err, dispatch.ErrNotPending):
		default:
			s.log().Error("dispatch edited request", "request_id", edited.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, toRequestResponse(edited))
}

func (s *Server) handleListStaff(w http.ResponseWriter, r *http.Request) {
	workers, err := s.staffService.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]workerResponse, 0, len(workers))
	for _, worker := range workers {
		out = append(out, toWorkerResponse(worker))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

type createStaffBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	TaskType string `json:"taskType"`
	Gender   string `json:"gender"`
	Building string `json:"building"`
	Wing     string `json:"wing"`
	Floor    int    `json:"floor"`
}

// handleCreateStaff creates the login account and the worker, then offers the
// new worker the best pending request of their type.
func (s *Server) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var body createStaffBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := staff.CreateParams{
		Name:     body.FullName,
		TaskType: request.TaskType(strings.TrimSpace(body.TaskType)),
		Gender:   staff.Gender(strings.ToUpper(strings.TrimSpace(body.Gender))),
		Location: staff.Location{Building: strings.TrimSpace(body.Building), Wing: body.Wing, Floor: body.Floor},
	}
	if err := params.Normalize(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	user, err := s.authService.Register(r.Context(), auth.RegisterRequest{
		Username: body.Username,
		Password: body.Password,
		FullName: body.FullName,
		Role:     auth.RoleStaff,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	params.UserID = &user.ID

	worker, err := s.staffService.Create(r.Context(), params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{"worker": toWorkerResponse(worker)}
	assignment, err := s.dispatchService.AssignNextForWorker(r.Context(), worker.ID)
	switch {
	case err == nil:
		resp["assignment"] = assignmentResponse{
			Request: toRequestResponse(assignment.Request),
			Worker:  toWorkerResponse(assignment.Worker),
		}
	case errors.Is(err, dispatch.ErrNoPendingRequest):
	default:
		s.log().Error("dispatch new worker", "worker_id", worker.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleDeleteStaff removes a free worker together with its login.
func (s *Server) handleDeleteStaff(w http.ResponseWriter, r *http.Request) {
	workerID := r.PathValue("id")
	if workerID == "" {
		writeError(w, http.StatusBadRequest, "missing worker id")
		return
	}

	if _, err := s.staffService.Delete(r.Context(), workerID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
