package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/dirsync/internal/reconcile"
)

type SyncHandler struct {
	syncer Syncer
}

func NewSyncHandler(syncer Syncer) *SyncHandler {
	return &SyncHandler{syncer: syncer}
}

// Now queues a pass.
//
//	@Summary		Start a sync
//	@Tags			sync
//	@Produce		json
//	@Success		202	{object}	ControlPlaneResponse
//	@Failure		409	{object}	ControlPlaneError
//	@Router			/v1/sync [post]
//	@Security		APIToken
func (h *SyncHandler) Now(c *gin.Context) {
	if err := h.syncer.Trigger(); err != nil {
		if errors.Is(err, reconcile.ErrSyncAlreadyRunning) {
			AbortWithError(c, http.StatusConflict, ErrCodeSyncRunning, err)
			return
		}
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.PureJSON(http.StatusAccepted, ControlPlaneResponse{Code: CodeAccepted})
}

// Stop interrupts the running pass.
//
//	@Summary		Stop the running sync
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	ControlPlaneResponse
//	@Failure		409	{object}	ControlPlaneError
//	@Router			/v1/sync/stop [post]
//	@Security		APIToken
func (h *SyncHandler) Stop(c *gin.Context) {
	if !h.syncer.Stop() {
		AbortWithError(c, http.StatusConflict, ErrCodeSyncIdle, errors.New("no sync running"))
		return
	}
	c.PureJSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}

// Report returns the last report, or 404 before the first pass.
//
//	@Summary		Get the last sync report
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	reconcile.Report
//	@Failure		404	{object}	ControlPlaneError
//	@Router			/v1/sync/report [get]
//	@Security		APIToken
func (h *SyncHandler) Report(c *gin.Context) {
	last := h.syncer.LastReport()
	if last == nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeSyncIdle, errors.New("no sync has run yet"))
		return
	}
	c.PureJSON(http.StatusOK, last)
}
