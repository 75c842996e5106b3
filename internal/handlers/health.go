package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/driveclone/apiserver/internal/httpx"
)

const healthPingTimeout = 2 * time.Second

// Pinger is satisfied by anything that can report backing store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and database health.
type HealthHandler struct {
	db  Pinger
	env string
	now func() time.Time
}

func NewHealthHandler(db Pinger, env string) *HealthHandler {
	return &HealthHandler{db: db, env: env, now: time.Now}
}

type HealthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Timestamp   string `json:"timestamp"`
	DBStatus    string `json:"dbStatus"`
}

// Healthcheck answers 200 when the database responds and 503 otherwise.
func (h *HealthHandler) Healthcheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:      "ok",
		Environment: h.env,
		Timestamp:   h.now().UTC().Format(time.RFC3339),
		DBStatus:    "connected",
	}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.DBStatus = "disconnected"
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, resp)
}

// Status is a liveness probe that never touches dependencies.
func Status(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, httpx.MessageResponse{Message: "API is working!"})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "Route not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, http.StatusMethodNotAllowed, httpx.CodeMethodNotAllowed, "Method not allowed")
}
