package controlplane

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/dirsync/internal/controlplane/handlers"
	"github.com/openmined/dirsync/internal/controlplane/middleware"
	"github.com/openmined/dirsync/internal/version"
)

//	@title						dirsync Control Plane API
//	@version					0.1.0
//	@description				Local HTTP API of the dirsync daemon
//	@BasePath					/
//	@securityDefinitions.apikey	APIToken
//	@in							header
//	@name						Authorization

type RouteConfig struct {
	AuthToken string
	RateLimit string
}

func SetupRoutes(syncer handlers.Syncer, routeConfig *RouteConfig) (http.Handler, error) {
	rate := routeConfig.RateLimit
	if rate == "" {
		rate = DefaultRateLimit
	}
	rateLimiter, err := middleware.RateLimiter(rate)
	if err != nil {
		return nil, err
	}

	statusH := handlers.NewStatusHandler(syncer)
	syncH := handlers.NewSyncHandler(syncer)
	logsH := handlers.NewLogsHandler(syncer)
	ledgerH := handlers.NewLedgerHandler(syncer)
	configH := handlers.NewConfigHandler(syncer)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(rateLimiter)

	r.GET("/", IndexHandler)

	// @Security APIToken
	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(middleware.TokenAuthConfig{Token: routeConfig.AuthToken}))
	{
		v1.GET("/status", statusH.Status)
		v1.GET("/logs", logsH.GetLogs)
		v1.GET("/config", configH.Get)

		v1Sync := v1.Group("/sync")
		{
			v1Sync.POST("", syncH.Now)
			v1Sync.POST("/stop", syncH.Stop)
			v1Sync.GET("/report", syncH.Report)
		}

		v1Ledger := v1.Group("/ledger")
		{
			v1Ledger.GET("", ledgerH.Stats)
			v1Ledger.POST("/clean", ledgerH.Clean)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler(), nil
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.DetailedWithApp())
}
