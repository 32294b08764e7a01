package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"boleteria/config"
	"boleteria/internal/handlers"
	"boleteria/internal/store"
	_ "boleteria/migrations"
	"boleteria/monitoring"
	"boleteria/services"
	"boleteria/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisClient)
	}

	// Initialize PubNub; without keys notifications are dropped
	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig), cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	st := store.New(app)
	ledgerService := services.NewLedgerService(redisClient, cfg, monitor)
	quotaService := services.NewQuotaService(st)
	ticketService := services.NewTicketService(cfg, monitor)
	purchaseService := services.NewPurchaseService(st, ledgerService, ticketService, notifier, monitor)
	checkinService := services.NewCheckinService(st, cfg, monitor)
	catalogService := services.NewCatalogService(st, quotaService, ledgerService)

	// Initialize handlers
	purchaseHandler := handlers.NewPurchaseHandler(app, purchaseService)
	checkinHandler := handlers.NewCheckinHandler(app, checkinService)
	adminHandler := handlers.NewAdminHandler(app, catalogService, quotaService, ledgerService)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Setup graceful shutdown
	go handleShutdown(cancel, ledgerService)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		ledgerService.StartSweeper(ctx)

		// Admin endpoints
		e.Router.POST("/api/v1/admin/events", adminHandler.CreateEvent)
		e.Router.POST("/api/v1/admin/events/{eventId}/feature", adminHandler.FeatureEvent)
		e.Router.POST("/api/v1/admin/events/{eventId}/sessions", adminHandler.CreateSession)
		e.Router.POST("/api/v1/admin/sessions/{sessionId}/tiers", adminHandler.CreateTier)
		e.Router.PATCH("/api/v1/admin/tiers/{tierId}/capacity", adminHandler.ChangeTierCapacity)
		e.Router.POST("/api/v1/admin/team-members", adminHandler.InviteTeamMember)
		e.Router.GET("/api/v1/admin/merchants/{merchantId}/quota", adminHandler.GetQuota)

		// Availability
		e.Router.GET("/api/v1/tiers/{tierId}/availability", adminHandler.GetTierAvailability)

		// Purchase endpoints
		e.Router.POST("/api/v1/purchases", purchaseHandler.CreatePurchase)
		e.Router.GET("/api/v1/purchases/{purchaseId}", purchaseHandler.GetPurchase)
		e.Router.POST("/api/v1/purchases/{purchaseId}/confirm", purchaseHandler.ConfirmPurchase)
		e.Router.POST("/api/v1/purchases/{purchaseId}/cancel", purchaseHandler.CancelPurchase)
		e.Router.POST("/api/v1/purchases/{purchaseId}/refund", purchaseHandler.RefundPurchase)

		// Check-in endpoints
		e.Router.POST("/api/v1/checkin/verify", checkinHandler.VerifyTicket)
		e.Router.POST("/api/v1/checkin", checkinHandler.CheckIn)

		// Test endpoint for payment simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/simulate-payment", purchaseHandler.SimulatePayment)
		}

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", func(e *core.RequestEvent) error {
				promhttp.Handler().ServeHTTP(e.Response, e.Request)
				return nil
			})
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc, ledger *services.LedgerService) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	ledger.Shutdown()
	cancel()
}
