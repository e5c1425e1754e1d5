package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hadirku/internal/attendance"
	"hadirku/internal/config"
	"hadirku/internal/notify"
	"hadirku/internal/queue"
	"hadirku/internal/settings"
	"hadirku/internal/store"
	"hadirku/internal/syncbridge"
)

// Worker delivers parent notifications and periodically re-pushes unsynced
// ledger rows to the mirror. Neither job ever feeds back into classification.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var jobs queue.Queue
	if cfg.QueueBackend == "memory" {
		jobs = queue.NewInMemory(64)
	} else {
		jobs = queue.NewRedisQueue(redisClient.Client, "hadirku:jobs")
	}

	ledger := attendance.NewRepository(db.Client)
	settingsRepo := settings.NewRepository(db.Client)
	notifier := notify.New(notify.Config{
		Auto:             cfg.NotifyAuto,
		Method:           cfg.NotifyMethod,
		WhatsAppEndpoint: cfg.WhatsAppEndpoint,
		WhatsAppAPIKey:   cfg.WhatsAppAPIKey,
		TelegramBotToken: cfg.TelegramBotToken,
	})
	syncClient := syncbridge.New(syncbridge.Config{
		BaseURL:  cfg.MirrorBaseURL,
		APIKey:   cfg.MirrorAPIKey,
		Enabled:  cfg.MirrorEnabled,
		HubURL:   cfg.HubURL,
		HubToken: cfg.HubToken,
	})

	if !notifier.Configured() {
		log.Println("notification gateway not configured; events will be dropped")
	}

	// Periodic reconciliation of unsynced records.
	if syncClient.MirrorEnabled() {
		go func() {
			ticker := time.NewTicker(cfg.ReconcileInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if pushed, err := syncbridge.Reconcile(ctx, syncClient, ledger); err != nil {
						log.Printf("reconcile failed: %v", err)
					} else if pushed > 0 {
						log.Printf("reconciled %d record(s)", pushed)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	messages, err := jobs.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		switch msg.Type {
		case queue.JobNotify:
			var evt attendance.Event
			if err := json.Unmarshal(msg.Body, &evt); err != nil {
				log.Printf("decode notify event failed: %v", err)
				continue
			}
			school, err := settingsRepo.Get(ctx)
			if err != nil {
				log.Printf("load settings failed: %v", err)
			}
			if err := notifier.Deliver(ctx, evt, school.SchoolName); err != nil {
				log.Printf("notify %s failed: %v", evt.Student.ID, err)
			}

		case queue.JobReconcile:
			if !syncClient.MirrorEnabled() {
				continue
			}
			if pushed, err := syncbridge.Reconcile(ctx, syncClient, ledger); err != nil {
				log.Printf("reconcile failed: %v", err)
			} else {
				log.Printf("reconciled %d record(s)", pushed)
			}
		}
	}

	log.Println("worker stopped")
}
