package routes

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wagate/pkg/domains/scraper"
	"github.com/wagate/pkg/middleware"
)

func ContactRoutes(r *gin.RouterGroup, s scraper.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("/:sid/scrape", scrapeContacts(s))
		authGroup.GET("/:sid", listContacts(s))
		authGroup.GET("/:sid/status", scrapeStatus(s))
	}
}

// scrapeContacts runs a full scrape synchronously; quota and cooldown
// violations surface as 429 with a retry hint.
func scrapeContacts(s scraper.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.ScrapeContacts(c, currentUser(c), c.Param("sid"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	}
}

func listContacts(s scraper.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		contacts, err := s.ListContacts(c, currentUser(c), c.Param("sid"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, contacts)
	}
}

func scrapeStatus(s scraper.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := s.Status(c, currentUser(c), c.Param("sid"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, status)
	}
}

func GroupRoutes(r *gin.RouterGroup, s scraper.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("/:sid/scrape", scrapeGroups(s))
		authGroup.GET("/:sid", listGroups(s))
		authGroup.POST("/members/:gid/scrape", scrapeGroupMembers(s))
	}
}

func scrapeGroups(s scraper.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.ScrapeGroups(c, currentUser(c), c.Param("sid"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	}
}

func listGroups(s scraper.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		groups, err := s.ListGroups(c, currentUser(c), c.Param("sid"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, groups)
	}
}

func scrapeGroupMembers(s scraper.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		gid, err := strconv.ParseUint(c.Param("gid"), 10, 64)
		if err != nil {
			failBadRequest(c, "group id must be numeric")
			return
		}
		result, err := s.ScrapeGroupMembers(c, currentUser(c), uint(gid))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, result)
	}
}
