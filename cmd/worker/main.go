package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/internal/queue"
	"github.com/clipwave/clipwave/internal/webhook"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/rs/zerolog/log"
)

// depthInterval is how often the queue depth gauge is refreshed
const depthInterval = 30 * time.Second

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	logger = logger.WithComponent("worker")

	// Initialize queue
	q, err := queue.New(cfg.Queue)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	hooks := webhook.NewService(cfg.Webhook, logger)
	defer hooks.Close()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger, map[string]metrics.Probe{
			"queue": func(context.Context) error {
				_, err := q.Depth()
				return err
			},
		})
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("Metrics server stopped", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	go watchDepth(ctx, q, logger)

	// Start consuming events
	logger.Infof("Worker started, delivering events to %d webhook endpoints", len(cfg.Webhook.URLs))
	if err := q.ConsumeEvents(ctx, newEventHandler(ctx, hooks, logger)); err != nil {
		logger.Fatalf("Failed to consume events: %v", err)
	}

	// Wait for shutdown
	<-ctx.Done()

	if metricsServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		stop()
	}
	logger.Info("Worker stopped")
}

// deliverer sends an event and returns once it was accepted or given up on
type deliverer interface {
	Deliver(ctx context.Context, e models.ProjectEvent) error
}

// newEventHandler delivers every consumed event through sink before the
// message is acked. A delivery that fails after its retries requeues the
// message.
func newEventHandler(ctx context.Context, sink deliverer, logger *logging.Logger) func(models.ProjectEvent) error {
	return func(e models.ProjectEvent) error {
		logger.LogProjectEvent(e.ProjectID, string(e.Type), string(e.Status), map[string]interface{}{
			"user_id":  e.UserID,
			"event_id": e.ID,
		})

		if err := sink.Deliver(ctx, e); err != nil {
			metrics.RecordEventConsumed(string(e.Type), "failed")
			logger.WithProjectID(e.ProjectID).WithError(err).Warnf("failed to deliver %s, requeueing", e.Type)
			return err
		}

		metrics.RecordEventConsumed(string(e.Type), "delivered")
		return nil
	}
}

type depthReader interface {
	Depth() (int, error)
}

func watchDepth(ctx context.Context, q depthReader, logger *logging.Logger) {
	ticker := time.NewTicker(depthInterval)
	defer ticker.Stop()

	for {
		n, err := q.Depth()
		if err != nil {
			logger.WithError(err).Warn("failed to read queue depth")
		} else {
			metrics.EventQueueDepth.Set(float64(n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
