package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/wagate/pkg/domains/whatsapp"
	"github.com/wagate/pkg/dtos"
	"github.com/wagate/pkg/middleware"
)

func SessionRoutes(r *gin.RouterGroup, s whatsapp.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("", createSession(s))
		authGroup.GET("", listSessions(s))
		authGroup.GET("/:sid/status", sessionStatus(s))
		authGroup.GET("/:sid/qr", sessionQR(s))
		authGroup.POST("/:sid/connect", connectSession(s))
		authGroup.POST("/:sid/disconnect", disconnectSession(s))
		authGroup.POST("/:sid/cleanup", cleanupSession(s))
		authGroup.DELETE("/:sid", disconnectSession(s))
	}
}

// @Summary Create a WhatsApp session
// @Tags sessions
// @Router /api/sessions [post]
func createSession(s whatsapp.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dtos.CreateSessionDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			failBadRequest(c, err.Error())
			return
		}

		session, err := s.Create(c, currentUser(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, session)
	}
}

func listSessions(s whatsapp.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly := c.Query("active") == "true"
		sessions, err := s.List(c, currentUser(c), activeOnly)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, sessions)
	}
}

func sessionStatus(s whatsapp.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := s.Status(c, currentUser(c), c.Param("sid"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, status)
	}
}

func sessionQR(s whatsapp.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		qr, err := s.QRCode(c, currentUser(c), c.Param("sid"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, qr)
	}
}

func connectSession(s whatsapp.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Connect(c, currentUser(c), c.Param("sid")); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"session_id": c.Param("sid")})
	}
}

func disconnectSession(s whatsapp.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dtos.DisconnectDTO
		_ = c.ShouldBindJSON(&req) // body is optional

		if err := s.Disconnect(c, currentUser(c), c.Param("sid"), req.Logout); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"session_id": c.Param("sid"), "logout": req.Logout})
	}
}

func cleanupSession(s whatsapp.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Cleanup(c, currentUser(c), c.Param("sid")); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"session_id": c.Param("sid")})
	}
}
