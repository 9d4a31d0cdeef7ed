package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/dirsync/internal/eventlog"
)

const (
	defaultMaxResults = 100

	ErrCodeLogsRetrievalFailed = "ERR_LOGS_RETRIEVAL_FAILED"
)

type LogsRequest struct {
	// Pagination token from a previous request.
	StartingToken int64 `form:"startingToken" binding:"min=0"`
	// Maximum number of events in one page.
	MaxResults int `form:"maxResults" binding:"omitempty,min=1,max=1000"`
}

type LogsResponse struct {
	Logs      []eventlog.Entry `json:"logs"`
	NextToken int64            `json:"nextToken"`
	HasMore   bool             `json:"hasMore"`
}

type LogsHandler struct {
	syncer Syncer
}

func NewLogsHandler(syncer Syncer) *LogsHandler {
	return &LogsHandler{syncer: syncer}
}

// GetLogs pages through the sync events kept in memory.
//
//	@Summary		Get sync events
//	@Tags			logs
//	@Produce		json
//	@Param			startingToken	query		int	false	"Sequence number to start from"	default(0)
//	@Param			maxResults		query		int	false	"Maximum number of events"		default(100)
//	@Success		200				{object}	LogsResponse
//	@Failure		400				{object}	ControlPlaneError
//	@Router			/v1/logs [get]
//	@Security		APIToken
func (h *LogsHandler) GetLogs(c *gin.Context) {
	var params LogsRequest
	if err := c.ShouldBindQuery(&params); err != nil {
		c.PureJSON(http.StatusBadRequest, &ControlPlaneError{
			ErrorCode: ErrCodeLogsRetrievalFailed,
			Error:     "Invalid query parameters: " + err.Error(),
		})
		return
	}
	if params.MaxResults == 0 {
		params.MaxResults = defaultMaxResults
	}

	logs, next, hasMore := h.syncer.Journal().Page(params.StartingToken, params.MaxResults)
	if logs == nil {
		logs = []eventlog.Entry{}
	}

	c.PureJSON(http.StatusOK, &LogsResponse{
		Logs:      logs,
		NextToken: next,
		HasMore:   hasMore,
	})
}
