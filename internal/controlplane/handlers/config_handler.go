package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ConfigHandler struct {
	syncer Syncer
}

func NewConfigHandler(syncer Syncer) *ConfigHandler {
	return &ConfigHandler{syncer: syncer}
}

// Get returns the current config as YAML with secrets masked. An invalid
// config is reported as 422 so that a UI can show what to fix.
//
//	@Summary		Get config
//	@Tags			config
//	@Produce		application/x-yaml
//	@Success		200	{object}	config.Config
//	@Failure		422	{object}	ControlPlaneError
//	@Router			/v1/config [get]
//	@Security		APIToken
func (h *ConfigHandler) Get(c *gin.Context) {
	cfg, err := h.syncer.LoadConfig()
	if err != nil {
		AbortWithError(c, http.StatusUnprocessableEntity, ErrCodeConfigInvalid, err)
		return
	}
	c.YAML(http.StatusOK, cfg.Redacted())
}
