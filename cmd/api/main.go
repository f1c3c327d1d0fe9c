package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/config"
	gateway "github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/gateways"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/handlers"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/queue"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/repository"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/services"
	xhttp "github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/http"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/pg"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/prom"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/redis"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 30))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	q, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	carrier, err := gateway.NewCarrierClient(gateway.CarrierConfig{
		AccountSID:        config.Get().CarrierAccountSID,
		AuthToken:         config.Get().CarrierAuthToken,
		BaseURL:           config.Get().CarrierBaseUrl,
		FromNumber:        config.Get().CarrierFromNumber,
		StatusCallbackURL: config.Get().CarrierCallbackUrl,
		Timeout:           config.Get().CarrierTimeout,
		MaxRetries:        config.Get().CarrierMaxRetries,
	})
	if err != nil {
		logger.Error("failed creating carrier client", "error", err)
		return
	}

	email, err := gateway.NewEmailClient(gateway.EmailConfig{
		BaseURL:     config.Get().EmailBaseUrl,
		AccessToken: config.Get().EmailAccessToken,
		Sender:      config.Get().EmailSender,
	})
	if err != nil {
		logger.Error("failed creating email client", "error", err)
		return
	}

	messageRepo := repository.NewMessageRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	auditRepo := repository.NewDeliveryAuditRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)
	reminderRepo := repository.NewReminderRepository(db)
	emailLogRepo := repository.NewEmailLogRepository(db)

	// services
	messageService := services.NewMessageService(messageRepo, customerRepo, auditRepo, q)
	outcomeService := services.NewOutcomeService(customerRepo)
	reconcilerService := services.NewReconcilerService(messageRepo, auditRepo, carrier, outcomeService, services.ReconcilerConfig{
		StaleWindow: config.Get().ReconcilerStaleWindow,
		Limit:       config.Get().ReconcilerLimit,
		BatchSize:   config.Get().ReconcilerBatchSize,
		BatchDelay:  config.Get().ReconcilerBatchDelay,
	})
	reminderService := services.NewReminderService(reminderRepo, emailLogRepo, idempotencyRepo, email, services.ReminderConfig{
		Limit:       config.Get().ReminderLimit,
		MaxAttempts: config.Get().ReminderMaxAttempts,
	})
	healthService := services.NewHealthService(db)

	// v1 handlers
	messageHandler := handlers.NewMessageHandler(messageService)
	healthHandler := handlers.NewHealthHandler(healthService)
	cronHandler := handlers.NewCronHandler(reconcilerService, reminderService, config.Get().CronSecret)

	g := s.Router.Group("/api/v1")
	handlers.RegisterMessageRoutes(g, messageHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)
	handlers.RegisterCronRoutes(g, cronHandler)

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
