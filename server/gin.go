package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewGinEngine builds the router with every route of the service.
func NewGinEngine(s *Server) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(metricsMiddleware())
	r.SetHTMLTemplate(consentTemplate)

	// Operational routes
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Signed relying-party API
	api := r.Group("/api")
	api.Use(s.SignatureMiddleware())
	api.POST("/ping", s.handlePing)
	api.POST("/core/authorize", s.handleCoreAuthorize)
	api.POST("/core/deauthorize", s.handleDeauthorize)
	api.POST("/core/reauthorize", s.handleReauthorize)
	api.POST("/core/info", s.handleInfo)
	api.POST("/core/permission/register", s.handleRegisterPermission)
	api.POST("/proxy/:group/:endpoint", s.handleProxy)
	api.POST("/lookup/:kind", s.handleLookup)

	// Browser-side authorize flows
	authorize := r.Group("/authorize")
	if s.OAuth != nil {
		authorize.GET("/oauth2", s.IdentityMiddleware(), s.handleOAuthConsent)
		authorize.POST("/oauth2", s.IdentityMiddleware(), s.handleOAuthDecision)
		authorize.POST("/oauth2/access_token", s.handleAccessToken)
		authorize.POST("/oauth2/revoke", s.handleRevoke)
	}
	if s.Legacy != nil {
		authorize.GET("/:request", s.IdentityMiddleware(), s.handleLegacyConsent)
		authorize.POST("/:request", s.IdentityMiddleware(), s.handleLegacyDecision)
	}

	// Account self-service
	account := r.Group("")
	account.Use(s.IdentityMiddleware())
	account.GET("/account", s.handleAccount)
	account.POST("/credentials", s.handleAddCredential)
	account.DELETE("/credentials/:key", s.handleDeleteCredential)
	account.GET("/applications", s.handleListApplications)
	account.POST("/applications", s.handleRegisterApplication)

	groups := account.Group("/groups/:id")
	groups.GET("", s.handleGetGroup)
	groups.PUT("", s.handlePutGroup)
	groups.DELETE("", s.handleDeleteGroup)
	groups.POST("/rename", s.handleRenameGroup)
	groups.POST("/permissions", s.handleGrantGroupPermission)
	groups.DELETE("/permissions/:permission", s.handleRevokeGroupPermission)
	groups.POST("/join", s.handleJoinGroup)
	groups.POST("/request", s.handleRequestGroup)
	groups.POST("/leave", s.handleLeaveGroup)
	groups.POST("/requests/:character/accept", s.handleAcceptRequest)

	return r
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(c *gin.Context) {
	db, err := s.Stores.Users.DB.DB()
	if err == nil {
		err = db.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
