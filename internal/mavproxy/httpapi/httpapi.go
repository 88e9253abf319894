// Package httpapi exposes endpoint and router management over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
	"github.com/volantvm/mavproxy/internal/mavproxy/endpoints"
	"github.com/volantvm/mavproxy/internal/mavproxy/eventbus"
	"github.com/volantvm/mavproxy/internal/mavproxy/manager"
	"github.com/volantvm/mavproxy/internal/mavproxy/router"
)

// Handler wires HTTP endpoints for the proxy manager.
type Handler struct {
	manager *manager.Manager
	bus     eventbus.Bus
	logger  *slog.Logger
}

// CommandResponse is returned by GET /router/command.
type CommandResponse struct {
	Router  string         `json:"router"`
	Command router.Command `json:"command"`
	Line    string         `json:"line"`
}

// PreferredRequest is the body of PUT /routers/preferred.
type PreferredRequest struct {
	Name string `json:"name"`
}

// New constructs a router backed by the provided Manager. bus may be nil, in
// which case the events stream is not served.
func New(mgr *manager.Manager, bus eventbus.Bus, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Handler{manager: mgr, bus: bus, logger: logger}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.json", h.serveOpenAPI)

		r.Get("/routers", h.handleListRouters)
		r.Put("/routers/preferred", h.handleSetPreferred)

		r.Get("/endpoints", h.handleListEndpoints)
		r.Post("/endpoints", h.handleAddEndpoint)
		r.Delete("/endpoints/{name}", h.handleRemoveEndpoint)

		r.Get("/master", h.handleGetMaster)
		r.Put("/master", h.handleSetMaster)

		r.Get("/router/status", h.handleStatus)
		r.Get("/router/command", h.handleCommand)
		r.Post("/router/start", h.handleStart)
		r.Post("/router/stop", h.handleStop)
		r.Post("/router/restart", h.handleRestart)

		if bus != nil {
			r.Get("/events", h.handleEvents)
		}
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleListRouters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Routers(r.Context()))
}

func (h *Handler) handleSetPreferred(w http.ResponseWriter, r *http.Request) {
	var req PreferredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.manager.SetPreferredRouter(req.Name); err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.Endpoints(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []endpoint.Endpoint{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleAddEndpoint(w http.ResponseWriter, r *http.Request) {
	var e endpoint.Endpoint
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	added, err := h.manager.AddEndpoint(r.Context(), e)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *Handler) handleRemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing endpoint name")
		return
	}
	if err := h.manager.RemoveEndpoint(r.Context(), name); err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetMaster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Master())
}

func (h *Handler) handleSetMaster(w http.ResponseWriter, r *http.Request) {
	var e endpoint.Endpoint
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.manager.SetMaster(r.Context(), e); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.manager.Master())
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	name, cmd, err := h.manager.Preview(r.Context())
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Router: name, Command: cmd, Line: cmd.String()})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	st, err := h.manager.Start(r.Context())
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Stop(r.Context()); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.manager.Status())
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	st, err := h.manager.Restart(r.Context())
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// handleEvents streams router lifecycle events as JSON websocket messages.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("events ws upgrade", "error", err)
		return
	}
	defer conn.Close()

	events := make(chan eventbus.RouterEvent, 16)
	unsubscribe, err := h.bus.Subscribe(events)
	if err != nil {
		h.logger.Error("events ws subscribe", "error", err)
		return
	}
	defer unsubscribe()

	// The client never sends data; reading surfaces its disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case evt := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Warn("events ws write", "error", err)
				return
			}
		}
	}
}

func writeManagerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var validationErr manager.ValidationError
	var unavailable manager.RouterUnavailableError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		if errors.Is(err, manager.ErrEndpointExists) {
			status = http.StatusConflict
		}
	case errors.As(err, &unavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, endpoints.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, manager.ErrAlreadyRunning), errors.Is(err, manager.ErrNotRunning), errors.Is(err, router.ErrBackendActive):
		status = http.StatusConflict
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
