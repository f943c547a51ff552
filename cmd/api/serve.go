package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "gstbooks/api/swagger" // swagger docs
	"gstbooks/internal/config"
	"gstbooks/internal/handler"
	"gstbooks/internal/lock"
	"gstbooks/internal/logger"
	"gstbooks/internal/repository"
	"gstbooks/internal/service"
	"gstbooks/internal/taxengine"
	"gstbooks/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("server")

	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	rdb := lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
	if rdb != nil {
		defer rdb.Close()
		log.Info().Str("addr", cfg.RedisAddr).Msg("distributed posting lock enabled")
	}
	locker := lock.New(rdb, cfg.LockTTL)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, db, locker, wsHub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter wires repositories, services and handlers (Repository -> Service -> Handler).
func newRouter(cfg *config.Config, db *gorm.DB, locker lock.Locker, wsHub *websocket.Hub) *gin.Engine {
	txManager := repository.NewTransactionManager(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	tdsRepo := repository.NewTDSRepository(db)

	engine := taxengine.New(taxengine.Options{EnableTDS: true, EnableTCS: true})

	invoiceService := service.NewInvoiceService(invoiceRepo, ledgerRepo, settingsRepo, auditRepo, txManager, engine, locker, wsHub)
	paymentService := service.NewPaymentService(paymentRepo, invoiceRepo, ledgerRepo, settingsRepo, auditRepo, txManager, locker, wsHub)
	ledgerService := service.NewLedgerService(ledgerRepo, accountRepo, invoiceRepo, settingsRepo, auditRepo, txManager)
	tdsService := service.NewTDSService(tdsRepo, invoiceRepo, settingsRepo, auditRepo, txManager, locker, wsHub)
	accountService := service.NewAccountService(accountRepo, ledgerRepo, settingsRepo, auditRepo, txManager)
	settingsService := service.NewSettingsService(settingsRepo, accountRepo, auditRepo, txManager)
	auditService := service.NewAuditService(auditRepo)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c)
	})

	api := router.Group("")
	handler.NewInvoiceHandler(invoiceService).RegisterRoutes(api)
	handler.NewPaymentHandler(paymentService).RegisterRoutes(api)
	handler.NewLedgerHandler(ledgerService).RegisterRoutes(api)
	handler.NewTDSHandler(tdsService).RegisterRoutes(api)
	handler.NewAccountHandler(accountService).RegisterRoutes(api)
	handler.NewSettingsHandler(settingsService).RegisterRoutes(api)
	handler.NewAuditHandler(auditService).RegisterRoutes(api)

	return router
}

// requestLogger logs one line per request through zerolog.
func requestLogger() gin.HandlerFunc {
	log := logger.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_id", c.GetString("userID")).
			Msg("request")
	}
}
