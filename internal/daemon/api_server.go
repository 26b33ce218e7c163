package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"meetcap/internal/api"
	"meetcap/internal/config"
	"meetcap/internal/ledger"
	"meetcap/internal/logging"
	"meetcap/internal/scheduler"
	"meetcap/internal/services"
	"meetcap/internal/session"
	"meetcap/internal/workflow"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
	maxRequestBody      = 64 << 10
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}

	mux.HandleFunc("/record_meeting", srv.guard(srv.handleRecordMeeting))
	mux.HandleFunc("/api/status", srv.guard(srv.handleStatus))
	mux.HandleFunc("/api/sessions", srv.guard(srv.handleSessions))
	mux.HandleFunc("/api/sessions/", srv.guard(srv.handleSession))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleRecordMeeting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body api.RecordMeetingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	link := strings.TrimSpace(body.GoogleMeetingLink)
	if link == "" {
		s.writeError(w, http.StatusBadRequest, "google_meeting_link is required")
		return
	}
	meetingID, err := session.MeetingIDFromLink(link)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	requestID := uuid.NewString()
	req := scheduler.Request{
		Link:      link,
		MeetingID: meetingID,
		TaskID:    strings.TrimSpace(body.TaskID),
		Username:  strings.TrimSpace(body.Username),
		StartTime: s.daemon.clock.Now(),
	}
	ctx := services.WithMeetingID(r.Context(), meetingID)
	ctx = services.WithTaskID(ctx, req.TaskID)
	logger := logging.WithContext(ctx, s.log()).With(logging.String(logging.FieldCorrelationID, requestID))

	if err := s.daemon.Dispatch(ctx, req); err != nil {
		status := dispatchStatus(err)
		logging.WarnWithContext(logger, "recording request rejected", "api_record_rejected",
			logging.Error(err),
			logging.Int("status", status),
			logging.String(logging.FieldImpact, "meeting will not be recorded"),
		)
		s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: services.Kind(err)})
		return
	}

	logger.Info("recording requested",
		logging.String(logging.FieldEventType, "api_record_meeting"),
		logging.String("username", req.Username),
	)
	s.writeJSON(w, http.StatusOK, api.RecordMeetingResponse{
		RecordingID: meetingID,
		RequestID:   requestID,
		Status:      "started",
		Message:     "Meeting recording has been started",
	})
}

func dispatchStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LedgerPath:   status.LedgerPath,
		LockFilePath: status.LockFilePath,
		APIAddress:   status.APIAddress,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Scheduler:    api.FromSchedulerSummary(status.SchedulerEnabled, status.LastPoll, status.Polls),
		Dependencies: api.FromDependencies(status.Dependencies),
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultSessionLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxSessionLimit)
	}
	rows, err := s.daemon.ListSessions(r.Context(), limit)
	if err != nil {
		s.log().Error("list sessions failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: api.FromLedgerSessions(rows)})
}

func (s *apiServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	idPart := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, transitions, err := s.daemon.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.log().Error("load session failed", logging.Int64("id", id), logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	claimed, err := s.daemon.Claimed(r.Context(), sess.TaskID)
	if err != nil {
		logging.WarnWithContext(s.log(), "claim lookup failed", "api_claim_lookup",
			logging.Int64("id", id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "session detail reports the task as unclaimed"),
		)
	}
	s.writeJSON(w, http.StatusOK, api.SessionDetailResponse{
		Session:     api.FromLedgerSession(sess),
		Transitions: api.FromTransitions(transitions),
		Claimed:     claimed,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
