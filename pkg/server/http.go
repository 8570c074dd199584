package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/Depado/ginprom"
	"github.com/wagate/app/api/routes"
	"github.com/wagate/pkg/config"
	"github.com/wagate/pkg/database"

	"github.com/wagate/pkg/clients/openai"
	"github.com/wagate/pkg/clients/rajaongkir"
	"github.com/wagate/pkg/domains/auth"
	"github.com/wagate/pkg/domains/autoreply"
	"github.com/wagate/pkg/domains/broadcast"
	"github.com/wagate/pkg/domains/ratelimit"
	"github.com/wagate/pkg/domains/scraper"
	"github.com/wagate/pkg/domains/whatsapp"
	"github.com/wagate/pkg/entities"
	"github.com/wagate/pkg/events"
	"github.com/wagate/pkg/middleware"
	"github.com/wagate/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	waTypes "go.mau.fi/whatsmeow/types"
)

func LaunchHttpServer(cfg *config.Config) {
	log.Println("Starting HTTP Server...")
	gin.SetMode(gin.DebugMode)

	app := gin.New()
	app.Use(gin.LoggerWithFormatter(func(log gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] - %s \"%s %s %s %d %s\"\n",
			log.TimeStamp.Format("2006-01-02 15:04:05"),
			log.ClientIP,
			log.Method,
			log.Path,
			log.Request.Proto,
			log.StatusCode,
			log.Latency,
		)
	}))
	app.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	app.Use(gin.Recovery())
	app.Use(otelgin.Middleware(cfg.App.Name))
	app.Use(middleware.ClaimIp())
	app.Use(cors.New(cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", "Origin", "Accept"},
		AllowOrigins:     corsOrigins(cfg.Allows),
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	p := ginprom.New(
		ginprom.Engine(app),
		ginprom.Subsystem("gin"),
		ginprom.Path("/metrics"),
		ginprom.Ignore("/swagger/*any"),
	)
	app.Use(p.Instrument())

	db := database.DBClient()
	clock := utils.SystemClock{}
	rng := utils.NewRand()
	hub := events.NewHub()

	// Gateways.
	sessionRepo := whatsapp.NewSessionRepo(db)
	messageRepo := whatsapp.NewMessageRepo(db)
	contactRepo := scraper.NewContactRepo(db)
	groupRepo := scraper.NewGroupRepo(db)
	scrapeLogRepo := scraper.NewLogRepo(db)
	conversationRepo := autoreply.NewConversationRepo(db)
	ruleRepo := autoreply.NewRuleRepo(db)
	rateRepo := ratelimit.NewRepo(db)
	broadcastRepo := broadcast.NewRepo(db)

	limiter := ratelimit.NewLimiter(cfg.RateLimit, rateRepo, clock, rng)

	// Collaborators.
	aiClient := openai.NewClient(cfg.Collaborators.OpenAI.APIKey, cfg.Collaborators.OpenAI.Model, cfg.Collaborators.OpenAI.BaseURL)
	shippingClient := rajaongkir.NewClient(cfg.Collaborators.RajaOngkir.APIKey, cfg.Collaborators.RajaOngkir.BaseURL)

	// Session manager and the inbound pipeline behind it.
	factory := whatsapp.NewWhatsmeowFactory(cfg.Storage.SessionPath)
	sessionManager := whatsapp.NewService(sessionRepo, hub, factory, clock, cfg.Storage.SessionPath)

	dispatcher := whatsapp.NewDispatcher(
		sessionManager, sessionRepo, messageRepo,
		contactRepo, groupRepo, conversationRepo,
		hub, clock, rng,
		whatsapp.DispatcherConfig{
			NotifyFreshness: time.Duration(cfg.AutoReply.NotifyFreshnessMin) * time.Minute,
			AppendFreshness: time.Duration(cfg.AutoReply.AppendFreshnessMin) * time.Minute,
		},
	)
	sessionManager.BindInbound(dispatcher.Handle)

	replyEngine := autoreply.NewEngine(
		sessionManager, messageRepo, conversationRepo, ruleRepo,
		limiter, aiClient, shippingClient, hub, clock, rng,
		cfg.AutoReply.HistoryWindow,
	)
	dispatcher.BindReplies(func(session entities.Session, msg entities.Message, replyJID waTypes.JID) {
		replyEngine.Schedule(session, msg, replyJID)
	})

	broadcastService := broadcast.NewService(broadcastRepo, sessionRepo, sessionManager, limiter, hub, clock, cfg.Broadcast, nil)
	scraperService := scraper.NewService(sessionRepo, sessionManager, contactRepo, groupRepo, scrapeLogRepo, messageRepo, clock, rng, cfg.Scraper)

	api := app.Group("/api")

	// Auth Routes
	auth_repo := auth.NewRepo(db)
	auth_service := auth.NewService(auth_repo)
	routes.AuthRoutes(api.Group("/auth"), auth_service)

	routes.SessionRoutes(api.Group("/sessions"), sessionManager)
	routes.MessageRoutes(api, sessionManager, sessionRepo, messageRepo, limiter)
	routes.BroadcastRoutes(api.Group("/broadcasts"), broadcastService)
	routes.GroupBroadcastRoutes(api.Group("/group-broadcast"), broadcastService)
	routes.ContactRoutes(api.Group("/contacts"), scraperService)
	routes.GroupRoutes(api.Group("/groups"), scraperService)
	routes.WSRoutes(api, hub, sessionRepo, clock)

	fmt.Println("Server is running on port " + cfg.App.Port)
	if err := app.Run(net.JoinHostPort(cfg.App.Host, cfg.App.Port)); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func corsOrigins(allows config.Allows) []string {
	if len(allows.Origins) == 0 {
		return []string{"*"}
	}
	return allows.Origins
}
