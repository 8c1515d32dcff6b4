package handlers

import (
	"context"
	"net/http"
	"time"

	"marketlink-service/internal/respond"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status    string `json:"status"`
	Storage   string `json:"storage"`
	ActiveRun string `json:"activeRun,omitempty"`
}

// Health: 200 пока база отвечает, 503 иначе. active: необязательный
// источник id текущего прогона.
func Health(db Pinger, active func() (string, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Storage: "ok"}
		status := http.StatusOK
		if err := db.Ping(ctx); err != nil {
			resp.Status, resp.Storage = "degraded", err.Error()
			status = http.StatusServiceUnavailable
		}
		if active != nil {
			resp.ActiveRun, _ = active()
		}
		_ = respond.JSON(w, status, resp)
	}
}
