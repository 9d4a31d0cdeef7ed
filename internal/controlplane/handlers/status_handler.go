package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/dirsync/internal/reconcile"
	"github.com/openmined/dirsync/internal/version"
)

type StatusResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"ts"`
	Version   string            `json:"version"`
	Revision  string            `json:"revision"`
	BuildDate string            `json:"buildDate"`
	State     reconcile.State   `json:"state"`
	Running   bool              `json:"running"`
	Summary   string            `json:"summary,omitempty"`
	Last      *reconcile.Report `json:"lastReport,omitempty"`
	Runtime   *RuntimeStats     `json:"runtime,omitempty"`
}

type StatusHandler struct {
	syncer Syncer
}

func NewStatusHandler(syncer Syncer) *StatusHandler {
	return &StatusHandler{syncer: syncer}
}

// Status returns the engine state and the report of the last pass.
//
//	@Summary		Get status
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/v1/status [get]
func (h *StatusHandler) Status(c *gin.Context) {
	state := h.syncer.State()
	resp := &StatusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Version,
		Revision:  version.Revision,
		BuildDate: version.BuildDate,
		State:     state,
		Running:   state != reconcile.StateIdle && !state.Terminal(),
	}
	if last := h.syncer.LastReport(); last != nil {
		resp.Last = last
		resp.Summary = last.Summary()
	}
	if rt, err := currentRuntime(); err != nil {
		slog.Debug("runtime stats", "error", err)
	} else {
		resp.Runtime = rt
	}
	c.PureJSON(http.StatusOK, resp)
}
