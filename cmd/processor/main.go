package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/config"
	gateway "github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/gateways"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/processor"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/repository"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/services"
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

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

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
		logger.Error("failed to create carrier client", "error", err)
		return
	}

	messageRepo := repository.NewMessageRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	auditRepo := repository.NewDeliveryAuditRepository(db)
	outcomeService := services.NewOutcomeService(customerRepo)

	guard := processor.NewSendGuard(redisAdap, processor.DefaultSendGuardConfig())

	service, err := processor.NewProcessorService(redisAdap)
	if err != nil {
		logger.Error("failed to create the processor", "error", err)
		return
	}
	service.RegisterProcessor(processor.NewSMSMessageProcessor(carrier, messageRepo, auditRepo, outcomeService, guard))

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

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start processor", "error", err)
		}
	}()

	select {
	case <-c:
		service.Stop()
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
