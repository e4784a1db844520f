package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iota-uz/feedback-hub/pkg/application"
	"github.com/iota-uz/feedback-hub/pkg/httpapi"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	db pinger
}

func NewHealthController(db pinger) application.Controller {
	return &HealthController{db: db}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.Health).Methods(http.MethodGet)
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if c.db == nil {
		_ = httpapi.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "unconfigured"})
		return
	}
	if err := c.db.Ping(ctx); err != nil {
		_ = httpapi.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: err.Error()})
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
}
