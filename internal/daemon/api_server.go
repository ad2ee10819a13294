package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"encodesync/internal/api"
	"encodesync/internal/assets"
	"encodesync/internal/broadcast"
	"encodesync/internal/config"
	"encodesync/internal/logging"
	"encodesync/internal/services"
)

const (
	maxRequestBytes   = 64 << 10
	sseKeepAlive      = 15 * time.Second
	sseSubscriberSize = 32

	defaultLogLines = 200
	maxLogLines     = 2000
	maxLogWait      = 25 * time.Second
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router chi.Router
	// loadAsset reads the snapshot sent first on an event stream.
	loadAsset func(ctx context.Context, id string) (*assets.Asset, error)

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.loadAsset = d.GetAsset

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Get("/healthz", srv.handleHealth)
	if d.deps.Webhook != nil {
		d.deps.Webhook.Mount(r)
	}
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(cfg.Paths.APIToken))
		r.Get("/api/status", srv.handleStatus)
		r.Get("/api/assets", srv.handleListAssets)
		r.Post("/api/assets", srv.handleCreateAsset)
		r.Route("/api/assets/{id}", func(r chi.Router) {
			r.Get("/", srv.handleGetAsset)
			r.Post("/submit", srv.handleSubmit)
			r.Post("/cancel", srv.handleCancel)
			r.Get("/events", srv.handleEvents)
		})
		r.Post("/api/notifications/test", srv.handleTestNotification)
		r.Get("/api/logs", srv.handleLogs)
	})
	srv.router = r
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Warn("api bind address empty; http server disabled",
			logging.String(logging.FieldEventType, "api_disabled"),
			logging.String(logging.FieldImpact, "webhook and API are unreachable"),
		)
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Counts:       api.StatusCounts(status.Counts),
		Attention:    status.Attention,
		Watching:     api.FromWatches(status.Watching),
		Broadcast:    status.Broadcast,
	})
}

func (s *apiServer) handleListAssets(w http.ResponseWriter, r *http.Request) {
	var statuses []assets.Status
	for _, value := range r.URL.Query()["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := assets.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	list, err := s.daemon.ListAssets(r.Context(), statuses)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AssetListResponse{Assets: api.FromAssets(list)})
}

func (s *apiServer) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.daemon.GetAsset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AssetResponse{Asset: api.FromAsset(asset)})
}

func (s *apiServer) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req api.CreateAssetRequest
	if !s.decode(w, r, &req) {
		return
	}
	asset, err := s.daemon.CreateAsset(r.Context(), req.ID, req.Title, req.SourceKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.AssetResponse{Asset: api.FromAsset(asset)})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}
	assetID := chi.URLParam(r, "id")
	jobID, err := s.daemon.Submit(r.Context(), assetID, req.SourceKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{AssetID: assetID, JobID: jobID})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	jobID, err := s.daemon.Cancel(r.Context(), assetID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{AssetID: assetID, JobID: jobID})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, api.ErrorResponse{Error: message + ": " + err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, api.TestNotificationResponse{Sent: sent, Message: message})
}

// handleLogs serves the daemon log. Without an offset the last lines are
// returned; with one, lines written after it, waiting up to wait seconds.
func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lines, err := intParam(query.Get("lines"), defaultLogLines)
	if err != nil || lines < 0 {
		s.writeError(w, http.StatusBadRequest, "lines must be a non-negative integer")
		return
	}
	offset, err := strconv.ParseInt(strings.TrimSpace(query.Get("offset")), 10, 64)
	if query.Get("offset") == "" {
		offset, err = -1, nil
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	waitSeconds, err := intParam(query.Get("wait"), 0)
	if err != nil || waitSeconds < 0 {
		s.writeError(w, http.StatusBadRequest, "wait must be a non-negative integer")
		return
	}
	wait := min(time.Duration(waitSeconds)*time.Second, maxLogWait)

	file, result, err := s.daemon.TailLogs(r.Context(), offset, min(lines, maxLogLines), wait)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LogTailResponse{File: file, Lines: result.Lines, Offset: result.Offset})
}

func intParam(value string, fallback int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

// handleEvents streams status snapshots as Server-Sent Events. The hub
// subscription is taken before the asset is read, so a transition committed
// in between is still delivered; queued snapshots not newer than the last one
// written are skipped.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.deps.Hub
	if hub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "live updates unavailable")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	updates, unsubscribe := hub.Subscribe(id, sseSubscriberSize)
	defer unsubscribe()
	asset, err := s.loadAsset(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	initial := broadcast.SnapshotFromAsset(asset)
	if err := writeEvent(w, rc, initial); err != nil {
		return
	}
	last := initial.UpdatedAt
	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if !snapshot.UpdatedAt.After(last) {
				continue
			}
			if err := writeEvent(w, rc, snapshot); err != nil {
				return
			}
			last = snapshot.UpdatedAt
		}
	}
}

func writeEvent(w io.Writer, rc *http.ResponseController, snapshot broadcast.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %s\nevent: status\ndata: %s\n\n", snapshot.EventID, payload); err != nil {
		return err
	}
	return rc.Flush()
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return true
	}
	if err := json.Unmarshal(body, out); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
