package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"planwise/internal/api"
	"planwise/internal/config"
	"planwise/internal/delivery"
	"planwise/internal/llm"
	"planwise/internal/logger"
	"planwise/internal/notify"
	"planwise/internal/repository"
	"planwise/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, err := logger.New(cfg.LogDir)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logg.Sync()

	db, err := repository.NewDB(cfg.DatabaseDSN)
	if err != nil {
		logg.Fatalw("open database", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	planRepo := repository.NewPlanRepository(db)
	patternRepo := repository.NewPatternRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	// Delivery idempotency store. Redis gives the cross-process atomic
	// check-and-set; without it a single-process memory store still protects
	// against double-fires within this instance.
	var store delivery.Store
	if cfg.RedisAddr != "" {
		redisStore, err := delivery.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logg.Fatalw("connect redis", "error", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		logg.Warnw("REDIS_ADDR not set, using in-process delivery store; do not run multiple workers")
		store = delivery.NewMemoryStore()
	}

	var senders []notify.Sender
	if cfg.FirebaseCredentials != "" {
		fcm, err := notify.NewFCMSender(ctx, cfg.FirebaseCredentials)
		if err != nil {
			logg.Fatalw("init fcm", "error", err)
		}
		senders = append(senders, fcm)
	}
	if cfg.SMTPHost != "" {
		email, err := notify.NewEmailSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
		if err != nil {
			logg.Fatalw("init email", "error", err)
		}
		senders = append(senders, email)
	}
	if cfg.TelegramToken != "" {
		telegram, err := notify.NewTelegramSender(cfg.TelegramToken)
		if err != nil {
			logg.Fatalw("init telegram", "error", err)
		}
		senders = append(senders, telegram)
	}
	if len(senders) == 0 {
		logg.Warnw("no notification channels configured; dispatch will only record audits")
	}

	var provider llm.Provider
	if cfg.LLMBaseURL != "" {
		client, err := llm.NewOpenAIClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)
		if err != nil {
			logg.Fatalw("init completion client", "error", err)
		}
		provider = client
	} else {
		logg.Infow("LLM_BASE_URL not set, suggestions use rule-based ordering only")
	}

	planSvc := service.NewPlanService(planRepo, taskRepo, userRepo)
	triggerSvc := service.NewTriggerService(userRepo, notifRepo, store, cfg.Tolerance(), logg)
	dispatcherSvc := service.NewDispatcherService(planSvc, notifRepo, userRepo, store, senders, logg)
	patternSvc := service.NewPatternService(planRepo, patternRepo, userRepo, logg)
	suggestionSvc := service.NewSuggestionService(patternRepo, provider, logg)
	healthSvc := service.NewHealthService(cfg.TickInterval(), provider)

	scheduler := service.NewSchedulerService(time.UTC, logg)

	tick := func() {
		tickCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		now := time.Now()
		due, err := triggerSvc.Evaluate(tickCtx, now)
		if err != nil {
			logg.Errorw("trigger evaluation failed", "error", err)
			return
		}
		healthSvc.MarkTick(now)

		// Per-user dispatch fans out to a bounded pool so one slow user's
		// retries never hold up the rest.
		sem := make(chan struct{}, cfg.DispatchWorkers)
		var wg sync.WaitGroup
		for _, job := range due {
			job := job
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				if err := dispatcherSvc.Dispatch(tickCtx, job); err != nil {
					logg.Errorw("dispatch failed", "user_id", job.UserID, "type", job.Type, "error", err)
				}
			}()
		}
		wg.Wait()
	}
	if _, err := scheduler.ScheduleInterval("notification-tick", cfg.TickInterval(), tick); err != nil {
		logg.Fatalw("schedule tick", "error", err)
	}

	nightly := func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := patternSvc.RunNightly(jobCtx); err != nil {
			logg.Errorw("pattern batch failed", "error", err)
		}
	}
	if _, err := scheduler.ScheduleCron("pattern-batch", cfg.PatternCron, nightly); err != nil {
		logg.Fatalw("schedule pattern batch", "error", err)
	}

	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(planSvc, suggestionSvc, patternSvc, dispatcherSvc, healthSvc, userRepo, notifRepo, logg)
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: handler.Router(),
	}

	go func() {
		logg.Infow("planner started", "port", cfg.ServerPort, "tick_interval", cfg.TickInterval())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Errorw("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Errorw("http shutdown", "error", err)
	}
	logg.Infow("shutdown complete")
}
