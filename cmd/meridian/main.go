package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/finance/journal"
	"github.com/meridian-erp/meridian-erp/internal/finance/payables"
	"github.com/meridian-erp/meridian-erp/internal/finance/periods"
	"github.com/meridian-erp/meridian-erp/internal/finance/settlement"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// journalSources composes the per-domain document readers into the single
// reader the voucher generator consumes.
type journalSources struct {
	receipts settlement.SourceAdapter
	payments payables.SourceAdapter
}

func (s journalSources) FindReceiptBill(ctx context.Context, ident shared.Identity, id uuid.UUID) (journal.SourceDocument, error) {
	return s.receipts.FindReceiptBill(ctx, ident, id)
}

func (s journalSources) FindPaymentBill(ctx context.Context, ident shared.Identity, id uuid.UUID) (journal.SourceDocument, error) {
	return s.payments.FindPaymentBill(ctx, ident, id)
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	invalidator := cache.NewTagInvalidator(redisClient, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	periodsRepo := periods.NewRepository(dbpool)
	periodsService := periods.NewService(periodsRepo)

	settlementRepo := settlement.NewRepository(dbpool)
	settlementService := settlement.NewService(settlementRepo)

	payablesRepo := payables.NewRepository(dbpool)
	payablesService := payables.NewService(payablesRepo)
	payablesService.WithCommissionReverser(jobsClient)

	journalRepo := journal.NewRepository(dbpool)
	journalService := journal.NewService(journalRepo, periodsService, shared.NewTimestampNumberGenerator())
	journalService.WithTemplates(journal.NewTemplateCache(journal.NewRepositoryTemplateSource(journalRepo), cfg.TemplateCacheTTL))
	journalService.WithSources(journalSources{
		receipts: settlement.NewSourceAdapter(settlementService),
		payments: payables.NewSourceAdapter(payablesService),
	})
	journalService.WithInvalidator(invalidator)

	settlementService.WithApprovedHook(func(ctx context.Context, ident shared.Identity, receiptID uuid.UUID) {
		if _, err := journalService.GenerateFromReceipt(ctx, ident, receiptID); err != nil {
			logger.Warn("auto voucher from receipt",
				slog.String("receipt_id", receiptID.String()),
				slog.Any("error", err))
		}
	})
	payablesService.WithPaidHook(func(ctx context.Context, ident shared.Identity, billID uuid.UUID) {
		if _, err := journalService.GenerateFromPaymentBill(ctx, ident, billID); err != nil {
			logger.Warn("auto voucher from payment bill",
				slog.String("bill_id", billID.String()),
				slog.Any("error", err))
		}
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		JournalHandler:    journal.NewHandler(logger, journalService),
		PeriodsHandler:    periods.NewHandler(logger, periodsService),
		SettlementHandler: settlement.NewHandler(logger, settlementService),
		PayablesHandler:   payables.NewHandler(logger, payablesService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
