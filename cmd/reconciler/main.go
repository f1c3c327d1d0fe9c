package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/config"
	gateway "github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/gateways"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/repository"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/services"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/pg"
)

// Runs one reconciliation pass and exits. Meant for schedulers that
// prefer a process per run over the HTTP cron endpoint.
func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
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

	db, err := pg.CreateReadWrite(readConf, writeConf, false)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		os.Exit(1)
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
		logger.Error("failed to create carrier client", "error", err)
		os.Exit(1)
	}

	messageRepo := repository.NewMessageRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	auditRepo := repository.NewDeliveryAuditRepository(db)
	outcomeService := services.NewOutcomeService(customerRepo)

	reconciler := services.NewReconcilerService(messageRepo, auditRepo, carrier, outcomeService, services.ReconcilerConfig{
		StaleWindow: config.Get().ReconcilerStaleWindow,
		Limit:       config.Get().ReconcilerLimit,
		BatchSize:   config.Get().ReconcilerBatchSize,
		BatchDelay:  config.Get().ReconcilerBatchDelay,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary, err := reconciler.Run(ctx)
	if err != nil {
		logger.Error("reconciliation run failed", "error", err)
		os.Exit(1)
	}
	if summary.Errors > 0 {
		os.Exit(1)
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
