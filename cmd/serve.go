package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-rental-payments/app/controller"
	"github.com/vibast-solutions/ms-go-rental-payments/app/factory"
	paymentgrpc "github.com/vibast-solutions/ms-go-rental-payments/app/grpc"
	"github.com/vibast-solutions/ms-go-rental-payments/app/provider"
	"github.com/vibast-solutions/ms-go-rental-payments/app/publisher"
	"github.com/vibast-solutions/ms-go-rental-payments/app/repository"
	"github.com/vibast-solutions/ms-go-rental-payments/app/service"
	"github.com/vibast-solutions/ms-go-rental-payments/app/types"
	"github.com/vibast-solutions/ms-go-rental-payments/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

const healthRefreshInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the HTTP (Echo) API with the M-Pesa webhooks and the gRPC health endpoint.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type application struct {
	cfg            *config.Config
	db             *sql.DB
	paymentService *service.PaymentService
	ledger         *service.TransactionLedger
	financeService *service.FinanceService
	publisher      service.EventPublisher
}

func runServe(_ *cobra.Command, _ []string) {
	app, cleanup := mustCreateApplication()
	defer cleanup()
	cfg := app.cfg

	paymentController := controller.NewPaymentController(app.paymentService)
	transactionController := controller.NewTransactionController(app.ledger)
	financeController := controller.NewFinanceController(app.financeService)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(paymentController, transactionController, financeController, echoInternalAuthMiddleware, cfg.App.ServiceName)

	healthServer := paymentgrpc.NewHealthServer(app.db)
	grpcSrv, lis := setupGRPCServer(cfg, healthServer, grpcInternalAuthMiddleware, cfg.App.ServiceName)

	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	go healthServer.Watch(healthCtx, healthRefreshInterval)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	stopHealth()
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	paymentController *controller.PaymentController,
	transactionController *controller.TransactionController,
	financeController *controller.FinanceController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	// Internal callers must send a request id and pass service auth. The
	// provider webhooks carry neither.
	internal := []echo.MiddlewareFunc{
		requireRequestID(),
		internalAuthMiddleware.RequireInternalAccess(appServiceName),
	}

	e.GET("/health", paymentController.Health, internal...)
	e.POST("/collections", paymentController.InitiateCollection, internal...)
	e.POST("/disbursements", paymentController.InitiateDisbursement, internal...)

	requests := e.Group("/payment-requests", internal...)
	requests.GET("/stale", paymentController.ListStaleRequests)
	requests.GET("/:correlation_id", paymentController.GetPaymentRequest)

	transactions := e.Group("/transactions", internal...)
	transactions.GET("", transactionController.ListTransactions)
	transactions.GET("/summary", transactionController.TransactionsSummary)
	transactions.POST("/:id/reverse", transactionController.ReverseTransaction)

	finance := e.Group("/finance", internal...)
	finance.GET("/net-income", financeController.NetIncome)
	finance.GET("/racd", financeController.RevenuePerAvailableCarDay)
	finance.GET("/fleet/utilization", financeController.FleetUtilization)
	finance.GET("/owners/:id/payout", financeController.OwnerPayout)
	finance.GET("/vehicles/:id/contribution-margin", financeController.VehicleContributionMargin)

	webhooks := e.Group("/webhooks/mpesa", ensureRequestID())
	webhooks.POST("/:kind", paymentController.HandleMpesaCallback)
	webhooks.POST("/:kind/:correlation_id", paymentController.HandleMpesaCallback)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func ensureRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
				ctx.Request().Header.Set(echo.HeaderXRequestID, requestID)
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	healthServer *paymentgrpc.HealthServer,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			paymentgrpc.RecoveryInterceptor(),
			paymentgrpc.RequestIDInterceptor(),
			paymentgrpc.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName),
		),
	)
	healthServer.Register(grpcSrv)

	return grpcSrv, lis
}

func mustCreateApplication() (*application, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	requestRepo := repository.NewPaymentRequestRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	callbackRepo := repository.NewProviderCallbackRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	registry := repository.NewRegistryRepository(db)
	txManager := repository.NewTxManager(db)

	gateway := provider.NewMpesaGateway(provider.MpesaConfig{
		BaseURL:               cfg.Mpesa.BaseURL,
		ConsumerKey:           cfg.Mpesa.ConsumerKey,
		ConsumerSecret:        cfg.Mpesa.ConsumerSecret,
		ShortCode:             cfg.Mpesa.ShortCode,
		Passkey:               cfg.Mpesa.Passkey,
		TransactionType:       cfg.Mpesa.TransactionType,
		B2CShortCode:          cfg.Mpesa.B2CShortCode,
		B2CInitiatorName:      cfg.Mpesa.B2CInitiatorName,
		B2CSecurityCredential: cfg.Mpesa.B2CSecurityCredential,
		B2CCommandID:          cfg.Mpesa.B2CCommandID,
		CallbackBaseURL:       cfg.Mpesa.CallbackBaseURL,
		TokenExpirySkew:       cfg.Mpesa.TokenExpirySkew,
		HTTPTimeout:           cfg.Mpesa.HTTPTimeout,
	})

	eventPublisher, closePublisher := mustCreatePublisher(cfg)

	ledger := service.NewTransactionLedger(transactionRepo, cfg.Payments.Currency)
	rentalHook := service.NewRentalPaymentHook(registry, transactionRepo, registry)
	paymentService := service.NewPaymentService(
		requestRepo,
		eventRepo,
		callbackRepo,
		ledger,
		registry,
		gateway,
		txManager,
		eventPublisher,
		rentalHook,
		registry,
		cfg.Payments,
		factory.NewModuleLogger("payments-service"),
	)
	financeService := service.NewFinanceService(transactionRepo, registry)

	cleanup := func() {
		gateway.Close()
		closePublisher()
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return &application{
		cfg:            cfg,
		db:             db,
		paymentService: paymentService,
		ledger:         ledger,
		financeService: financeService,
		publisher:      eventPublisher,
	}, cleanup
}

// mustCreatePublisher returns the Redis publisher when REDIS_ADDR is set and
// a log-only publisher otherwise.
func mustCreatePublisher(cfg *config.Config) (service.EventPublisher, func()) {
	logger := factory.NewModuleLogger("events")
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		logger.Info("REDIS_ADDR not set, domain events are only logged")
		return publisher.NewLogPublisher(logger), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logrus.WithError(err).Fatal("Failed to ping redis")
	}

	closeFn := func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis client")
		}
	}
	return publisher.NewRedisPublisher(client, cfg.Redis.EventsChannel), closeFn
}
