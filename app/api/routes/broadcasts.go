package routes

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wagate/pkg/constant"
	"github.com/wagate/pkg/domains/broadcast"
	"github.com/wagate/pkg/dtos"
	"github.com/wagate/pkg/middleware"
)

func BroadcastRoutes(r *gin.RouterGroup, s broadcast.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("", createBroadcast(s))
		authGroup.GET("", listBroadcasts(s))
		authGroup.GET("/:cid", getBroadcast(s))
		authGroup.POST("/:cid/execute", executeBroadcast(s))
		authGroup.POST("/:cid/cancel", cancelBroadcast(s))
	}
}

func campaignID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("cid"), 10, 64)
	if err != nil {
		failBadRequest(c, "campaign id must be numeric")
		return 0, false
	}
	return uint(id), true
}

func createBroadcast(s broadcast.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dtos.CreateBroadcastDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			failBadRequest(c, constant.INVALID_REQUEST)
			return
		}

		campaign, err := s.Create(c, currentUser(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, campaign)
	}
}

func listBroadcasts(s broadcast.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		campaigns, err := s.List(c, currentUser(c), c.Query("status"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, campaigns)
	}
}

func getBroadcast(s broadcast.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := campaignID(c)
		if !valid {
			return
		}
		campaign, err := s.Get(c, currentUser(c), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, campaign)
	}
}

// executeBroadcast returns immediately; delivery continues in the
// background and reports through broadcast:* events.
func executeBroadcast(s broadcast.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := campaignID(c)
		if !valid {
			return
		}
		if err := s.Execute(c, currentUser(c), id); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"campaign_id": id, "message": constant.CAMPAIGN_STARTED})
	}
}

func cancelBroadcast(s broadcast.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := campaignID(c)
		if !valid {
			return
		}
		if err := s.Cancel(c, currentUser(c), id); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"campaign_id": id, "message": constant.CAMPAIGN_CANCELLED})
	}
}

// GroupBroadcastRoutes mounts the explicit group-target send.
func GroupBroadcastRoutes(r *gin.RouterGroup, s broadcast.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("/:sid/send", groupBroadcast(s))
	}
}

func groupBroadcast(s broadcast.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dtos.GroupBroadcastDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			failBadRequest(c, constant.INVALID_REQUEST)
			return
		}

		sent, failed, err := s.GroupBroadcast(c, currentUser(c), c.Param("sid"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"sent": sent, "failed": failed})
	}
}
