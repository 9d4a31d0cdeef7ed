package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/openmined/dirsync/internal/ledger"
	"github.com/openmined/dirsync/internal/reconcile"
	"github.com/openmined/dirsync/internal/workspace"
)

const (
	statsCacheSize = 8
	statsCacheTTL  = 5 * time.Second
)

// LedgerHandler serves ledger maintenance. Stats are cached per pass, keyed
// by the run id of the last report, so polling clients do not reopen the
// ledger on every request.
type LedgerHandler struct {
	syncer Syncer
	stats  *expirable.LRU[string, ledger.Stats]
}

func NewLedgerHandler(syncer Syncer) *LedgerHandler {
	return &LedgerHandler{
		syncer: syncer,
		stats:  expirable.NewLRU[string, ledger.Stats](statsCacheSize, nil, statsCacheTTL),
	}
}

func (h *LedgerHandler) statsKey() string {
	if last := h.syncer.LastReport(); last != nil {
		return last.RunID
	}
	return ""
}

// Stats
//
//	@Summary		Get ledger size
//	@Tags			ledger
//	@Produce		json
//	@Success		200	{object}	ledger.Stats
//	@Router			/v1/ledger [get]
//	@Security		APIToken
func (h *LedgerHandler) Stats(c *gin.Context) {
	key := h.statsKey()
	if stats, ok := h.stats.Get(key); ok {
		c.PureJSON(http.StatusOK, stats)
		return
	}

	stats, err := h.syncer.LedgerStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeLedger, err)
		return
	}
	h.stats.Add(key, stats)
	c.PureJSON(http.StatusOK, stats)
}

// Clean empties the ledger. The next pass treats every entity as first
// contact.
//
//	@Summary		Clean the ledger
//	@Tags			ledger
//	@Produce		json
//	@Success		200	{object}	ledger.Stats
//	@Failure		409	{object}	ControlPlaneError
//	@Router			/v1/ledger/clean [post]
//	@Security		APIToken
func (h *LedgerHandler) Clean(c *gin.Context) {
	ctx := c.Request.Context()
	err := h.syncer.CleanLedger(ctx)
	switch {
	case errors.Is(err, reconcile.ErrSyncAlreadyRunning):
		AbortWithError(c, http.StatusConflict, ErrCodeSyncRunning, err)
		return
	case errors.Is(err, workspace.ErrWorkspaceLocked):
		AbortWithError(c, http.StatusConflict, ErrCodeLocked, err)
		return
	case err != nil:
		AbortWithError(c, http.StatusInternalServerError, ErrCodeLedger, err)
		return
	}
	h.stats.Purge()

	stats, err := h.syncer.LedgerStats(ctx)
	if err != nil {
		stats = ledger.Stats{}
	}
	c.PureJSON(http.StatusOK, stats)
}
