package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"facilityflow/auth"
	"facilityflow/dispatch"
	"facilityflow/request"
	"facilityflow/scheduler"
	"facilityflow/staff"
)

type contextKey string

const (
	ctxKeyUserID contextKey = "user_id"
	ctxKeyRole   contextKey = "role"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
}

type requestService interface {
	Create(ctx context.Context, params request.CreateParams) (request.Request, error)
	ListBySubmitter(ctx context.Context, userID string) ([]request.Request, error)
	ListForWorker(ctx context.Context, workerID string, taskType request.TaskType) ([]request.Request, error)
}

type staffService interface {
	Create(ctx context.Context, params staff.CreateParams) (staff.Worker, error)
	List(ctx context.Context) ([]staff.Worker, error)
	GetByUserID(ctx context.Context, userID string) (staff.Worker, error)
	UpdateLocation(ctx context.Context, workerID string, loc staff.Location) (staff.Worker, error)
	Delete(ctx context.Context, workerID string) (staff.Worker, error)
}

type dispatchService interface {
	AssignNewRequest(ctx context.Context, requestID string) (dispatch.Assignment, error)
	AssignNextForWorker(ctx context.Context, workerID string) (dispatch.Assignment, error)
	CompleteByStaff(ctx context.Context, workerID, requestID string) (dispatch.CompletionResult, error)
	CompleteByAdmin(ctx context.Context, requestID string) (request.Request, error)
	Cancel(ctx context.Context, requestID string) (request.Request, error)
	Edit(ctx context.Context, requestID string, params request.EditParams) (request.Request, error)
}

type queueService interface {
	Queue(ctx context.Context) ([]scheduler.Ranked, error)
	BestWorker(ctx context.Context, requestID string) (request.Request, *staff.Worker, error)
}

// Server bundles the HTTP handlers and their dependencies.
type Server struct {
	authService     authService
	requestService  requestService
	staffService    staffService
	dispatchService dispatchService
	queueService    queueService
	logger          *slog.Logger
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	student := s.requireRole(auth.RoleStudent)
	mux.Handle("POST /api/requests", student(s.handleCreateRequest))
	mux.Handle("GET /api/requests/mine", student(s.handleMyRequests))

	staffOnly := s.requireRole(auth.RoleStaff)
	mux.Handle("POST /api/staff/requests/{id}/complete", staffOnly(s.handleStaffComplete))
	mux.Handle("PATCH /api/staff/location", staffOnly(s.handleStaffLocation))
	mux.Handle("GET /api/staff/me", staffOnly(s.handleStaffMe))
	mux.Handle("GET /api/staff/tasks", staffOnly(s.handleStaffTasks))

	adminOnly := s.requireRole(auth.RoleAdmin)
	mux.Handle("GET /api/admin/queue", adminOnly(s.handleAdminQueue))
	mux.Handle("GET /api/admin/requests/{id}/best-worker", adminOnly(s.handleBestWorker))
	mux.Handle("POST /api/admin/requests/{id}/complete", adminOnly(s.handleAdminComplete))
	mux.Handle("PATCH /api/admin/requests/{id}", adminOnly(s.handleAdminEdit))
	mux.Handle("DELETE /api/admin/requests/{id}", adminOnly(s.handleAdminCancel))
	mux.Handle("GET /api/admin/staff", adminOnly(s.handleListStaff))
	mux.Handle("POST /api/admin/staff", adminOnly(s.handleCreateStaff))
	mux.Handle("DELETE /api/admin/staff/{id}", adminOnly(s.handleDeleteStaff))

	return s.logRequests(mux)
}

// requireRole authenticates the bearer token and admits only the given roles.
func (s *Server) requireRole(roles ...auth.Role) func(http.HandlerFunc) http.Handler {
	return func(next http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			userID, role, err := s.authService.VerifyToken(strings.TrimSpace(token))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if !slices.Contains(roles, role) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
			ctx = context.WithValue(ctx, ctxKeyRole, role)
			next(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log().Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func userIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(ctxKeyUserID).(string)
	return userID
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps domain errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, request.ErrNotFound), errors.Is(err, staff.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, request.ErrMissingSubmitter),
		errors.Is(err, request.ErrInvalidTaskType),
		errors.Is(err, request.ErrUnknownBuilding),
		errors.Is(err, request.ErrInvalidFloor),
		errors.Is(err, request.ErrInvalidStatus),
		errors.Is(err, staff.ErrInvalidLocation),
		errors.Is(err, staff.ErrInvalidWorker),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrMissingFields),
		errors.Is(err, auth.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrNotAssignee):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, dispatch.ErrNotInProgress),
		errors.Is(err, dispatch.ErrAlreadyClosed),
		errors.Is(err, dispatch.ErrNotPending),
		errors.Is(err, dispatch.ErrManualAssignment),
		errors.Is(err, staff.ErrBusy),
		errors.Is(err, auth.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
