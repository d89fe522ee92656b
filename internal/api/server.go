// Package api exposes the dashboard REST surface: aggregated calendar
// and image feeds, service widget content, and plugin management.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"homedash/internal/calendar"
	xerrors "homedash/internal/errors"
	"homedash/internal/imagefeed"
	"homedash/internal/orchestrator"
	"homedash/pkg/logger"
	"homedash/pkg/plugin"
)

const defaultEventWindow = 7 * 24 * time.Hour

// Server wires the HTTP handlers to the dashboard services.
type Server struct {
	addr     string
	orch     *orchestrator.Orchestrator
	runtime  *plugin.Runtime
	calendar *calendar.Service
	images   *imagefeed.Service
	metrics  http.Handler
	log      *slog.Logger
}

// NewServer builds the API server. The metrics handler may be nil.
func NewServer(addr string, orch *orchestrator.Orchestrator, rt *plugin.Runtime, cal *calendar.Service, imgs *imagefeed.Service, metrics http.Handler) *Server {
	return &Server{
		addr:     addr,
		orch:     orch,
		runtime:  rt,
		calendar: cal,
		images:   imgs,
		metrics:  metrics,
		log:      logger.Named("api"),
	}
}

// Start serves HTTP until the context is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/images", s.handleImages)
	mux.HandleFunc("POST /api/v1/images/rescan", s.handleImagesRescan)
	mux.HandleFunc("GET /api/v1/images/current", s.handleImageCursor("current"))
	mux.HandleFunc("POST /api/v1/images/next", s.handleImageCursor("next"))
	mux.HandleFunc("POST /api/v1/images/previous", s.handleImageCursor("previous"))
	mux.HandleFunc("PUT /api/v1/images/shuffle", s.handleImageShuffle)
	mux.HandleFunc("GET /api/v1/images/{instance}/{image}/data", s.handleImageData)
	mux.HandleFunc("GET /api/v1/services/{id}/content", s.handleServiceContent)
	mux.HandleFunc("POST /api/v1/services/{id}/webhook", s.handleServiceWebhook)
	mux.HandleFunc("/api/v1/services/{id}/api/{path...}", s.handleServiceAPI)
	mux.HandleFunc("GET /api/v1/plugins", s.handleListPlugins)
	mux.HandleFunc("POST /api/v1/plugins", s.handleRegisterPlugin)
	mux.HandleFunc("DELETE /api/v1/plugins/{id}", s.handleUnregisterPlugin)
	mux.HandleFunc("GET /api/v1/plugins/{id}/config", s.handlePluginConfig)
	mux.HandleFunc("PUT /api/v1/plugins/{id}/config", s.handleConfigurePlugin)
	mux.HandleFunc("PUT /api/v1/plugins/{id}/enabled", s.handlePluginEnabled)
	mux.HandleFunc("GET /api/v1/plugin-types", s.handleListTypes)
	mux.HandleFunc("PUT /api/v1/plugin-types/{id}/enabled", s.handleTypeEnabled)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	start, end := now, now.Add(defaultEventWindow)
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		start = parsed
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		end = parsed
	}

	events, err := s.calendar.Events(r.Context(), start, end)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"images": s.images.Images(r.Context())})
}

func (s *Server) handleImagesRescan(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"images": s.images.Rescan(r.Context())})
}

func (s *Server) handleImageCursor(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			meta *plugin.ImageMeta
			err  error
		)
		switch op {
		case "next":
			meta, err = s.images.Next(r.Context())
		case "previous":
			meta, err = s.images.Previous(r.Context())
		default:
			meta, err = s.images.Current(r.Context())
		}
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"image": meta})
	}
}

func (s *Server) handleImageShuffle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.images.SetShuffle(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"shuffle": req.Enabled})
}

func (s *Server) handleImageData(w http.ResponseWriter, r *http.Request) {
	data, err := s.images.ImageData(r.Context(), r.PathValue("instance"), r.PathValue("image"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	_, _ = w.Write(data)
}

func (s *Server) handleServiceContent(w http.ResponseWriter, r *http.Request) {
	src, ok := s.serviceSource(w, r.PathValue("id"))
	if !ok {
		return
	}
	content, err := src.Content(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleServiceWebhook(w http.ResponseWriter, r *http.Request) {
	src, ok := s.serviceSource(w, r.PathValue("id"))
	if !ok {
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read webhook payload failed")
		return
	}
	if err := plugin.HandleWebhook(r.Context(), src, payload); err != nil {
		if errors.Is(err, plugin.ErrUnsupported) {
			writeError(w, http.StatusNotImplemented, "plugin does not accept webhooks")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleServiceAPI(w http.ResponseWriter, r *http.Request) {
	src, ok := s.serviceSource(w, r.PathValue("id"))
	if !ok {
		return
	}
	var data map[string]any
	for k, v := range r.URL.Query() {
		if data == nil {
			data = make(map[string]any)
		}
		data[k] = v[0]
	}
	if r.Body != nil && r.Method != http.MethodGet {
		_ = json.NewDecoder(r.Body).Decode(&data)
	}
	result, err := plugin.HandleAPI(r.Context(), src, r.Method, r.PathValue("path"), data)
	if err != nil {
		if errors.Is(err, plugin.ErrUnsupported) {
			writeError(w, http.StatusNotImplemented, "plugin does not expose an API")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	category := plugin.Category(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}
	rows, err := s.orch.ListInstances(r.Context(), category)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": rows})
}

func (s *Server) handleRegisterPlugin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string         `json:"id"`
		TypeID  string         `json:"type_id"`
		Name    string         `json:"name"`
		Config  map[string]any `json:"config"`
		Enabled *bool          `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	p, err := s.orch.RegisterPlugin(r.Context(), req.ID, req.TypeID, req.Name, req.Config, enabled)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      p.InstanceID(),
		"type_id": req.TypeID,
		"enabled": p.Enabled(),
	})
}

func (s *Server) handleUnregisterPlugin(w http.ResponseWriter, r *http.Request) {
	existed, err := s.orch.UnregisterPlugin(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "plugin not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePluginConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.orch.PluginConfig(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
}

func (s *Server) handleConfigurePlugin(w http.ResponseWriter, r *http.Request) {
	var cfg map[string]any
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.orch.ConfigurePlugin(r.Context(), r.PathValue("id"), cfg); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePluginEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.orch.SetInstanceEnabled(r.Context(), r.PathValue("id"), req.Enabled); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	rows, err := s.orch.ListTypes(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": rows})
}

func (s *Server) handleTypeEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.orch.SetTypeEnabled(r.Context(), r.PathValue("id"), req.Enabled); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serviceSource(w http.ResponseWriter, id string) (plugin.ServiceSource, bool) {
	p := s.runtime.Get(id)
	if p == nil {
		writeError(w, http.StatusNotFound, "plugin not found")
		return nil, false
	}
	src, ok := p.(plugin.ServiceSource)
	if !ok {
		writeError(w, http.StatusBadRequest, "plugin is not a service source")
		return nil, false
	}
	return src, true
}

// writeServiceError maps internal error codes to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, xerrors.CodeConfigValidation:
		status = http.StatusBadRequest
	case xerrors.CodeNotFound, xerrors.CodePluginNotFound:
		status = http.StatusNotFound
	case xerrors.CodeConflict, xerrors.CodeDuplicatePlugin:
		status = http.StatusConflict
	case xerrors.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", slog.Any("error", err))
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// withContext rejects requests once the root context is gone.
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
