package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dilip0552/PresenSync/internal/config"
	"github.com/Dilip0552/PresenSync/internal/docstore"
	"github.com/Dilip0552/PresenSync/internal/notify"
	"github.com/Dilip0552/PresenSync/internal/queue"
	"github.com/Dilip0552/PresenSync/internal/store"
	"github.com/Dilip0552/PresenSync/internal/users"
)

// Worker drains queued notification fan-outs and writes them to each user's
// feed in batches.
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

	docs, err := docstore.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer docs.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "presensync:notifications")
	}

	userRepo := users.NewRepository(docs, cfg.AppID)
	notifier := notify.NewService(docs, userRepo, q, cfg.AppID)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != notify.MessageType {
			continue
		}

		job, err := notify.DecodeJob(msg.Body)
		if err != nil {
			log.Printf("skipping message: %v", err)
			continue
		}

		log.Printf("delivering notification to %d users", len(job.UIDs))
		if err := notifier.Deliver(ctx, job); err != nil {
			log.Printf("delivery failed: %v", err)
			continue
		}
		log.Printf("notification delivered to %d users", len(job.UIDs))
	}

	log.Println("worker stopped")
}
