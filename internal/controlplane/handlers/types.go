package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/openmined/dirsync/internal/config"
	"github.com/openmined/dirsync/internal/eventlog"
	"github.com/openmined/dirsync/internal/ledger"
	"github.com/openmined/dirsync/internal/reconcile"
)

const (
	CodeOk               string = "OK"
	CodeAccepted         string = "ACCEPTED"
	ErrCodeBadRequest    string = "ERR_BAD_REQUEST"
	ErrCodeUnknownError  string = "ERR_UNKNOWN_ERROR"
	ErrCodeSyncRunning   string = "ERR_SYNC_RUNNING"
	ErrCodeSyncIdle      string = "ERR_SYNC_IDLE"
	ErrCodeConfigInvalid string = "ERR_CONFIG_INVALID"
	ErrCodeLocked        string = "ERR_DATA_DIR_LOCKED"
	ErrCodeLedger        string = "ERR_LEDGER"
)

// Syncer is the part of the sync runner the control plane drives.
type Syncer interface {
	Trigger() error
	Stop() bool
	State() reconcile.State
	LastReport() *reconcile.Report
	LoadConfig() (*config.Config, error)
	CleanLedger(ctx context.Context) error
	LedgerStats(ctx context.Context) (ledger.Stats, error)
	Journal() *eventlog.Journal
}

type ControlPlaneResponse struct {
	Code string `json:"code"`
}

type ControlPlaneError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, ControlPlaneError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}
