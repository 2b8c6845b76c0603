package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/storage"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/infrastructure/database"
	infrapubsub "github.com/fitnessllm/dataplatform/pkg/infrastructure/pubsub"
	"github.com/fitnessllm/dataplatform/pkg/infrastructure/secrets"
	sentryinfra "github.com/fitnessllm/dataplatform/pkg/infrastructure/sentry"
	infrastorage "github.com/fitnessllm/dataplatform/pkg/infrastructure/storage"
	"github.com/fitnessllm/dataplatform/pkg/infrastructure/warehouse"
)

// Config holds standard configuration for all services
type Config struct {
	ProjectID     string
	Env           string // dataset prefix: dev, staging, prod
	BronzeBucket  string
	EnablePublish bool
	Workers       int // batch worker pool width
	Sample        int // cap on raw objects per stream, 0 = unlimited

	// Secret Manager names, resolved once at startup.
	EncryptionSecret string
	SourceSecret     string

	SentryDSN string
}

// Service holds initialized dependencies
type Service struct {
	DB        shared.Database
	Store     shared.BlobStore
	Warehouse shared.Warehouse
	Pub       shared.Publisher
	Secrets   shared.SecretStore
	Config    *Config
}

// LoadConfig reads configuration from environment variables
func LoadConfig() *Config {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		projectID = shared.ProjectID // Fallback
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "dev"
	}

	workers := runtime.NumCPU()
	if w, err := strconv.Atoi(os.Getenv("WORKER")); err == nil && w > 0 {
		workers = w
	}
	sample := 0
	if s, err := strconv.Atoi(os.Getenv("SAMPLE")); err == nil && s > 0 {
		sample = s
	}

	return &Config{
		ProjectID:        projectID,
		Env:              env,
		BronzeBucket:     os.Getenv("BRONZE_BUCKET"),
		EnablePublish:    os.Getenv("ENABLE_PUBLISH") == "true",
		Workers:          workers,
		Sample:           sample,
		EncryptionSecret: os.Getenv("ENCRYPTION_SECRET"),
		SourceSecret:     os.Getenv("SOURCE_SECRET"),
		SentryDSN:        os.Getenv("SENTRY_DSN"),
	}
}

// GetSlogHandlerOptions returns standard handler options for GCP
func GetSlogHandlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Map standard keys to Cloud Logging keys
			if a.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: a.Value}
			}
			if a.Key == slog.LevelKey {
				return slog.Attr{Key: "severity", Value: a.Value}
			}
			return a
		},
	}
}

// ComponentHandler wraps a slog.Handler to prepend [component] to the message
type ComponentHandler struct {
	slog.Handler
	component string
}

// WithGroup implements slog.Handler
func (h *ComponentHandler) WithGroup(name string) slog.Handler {
	return &ComponentHandler{
		Handler:   h.Handler.WithGroup(name),
		component: h.component,
	}
}

// WithAttrs implements slog.Handler
func (h *ComponentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newComp := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			newComp = a.Value.String()
		}
	}
	return &ComponentHandler{
		Handler:   h.Handler.WithAttrs(attrs),
		component: newComp,
	}
}

// Handle implements slog.Handler
func (h *ComponentHandler) Handle(ctx context.Context, r slog.Record) error {
	comp := h.component

	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			comp = a.Value.String()
			return false // stop
		}
		return true
	})

	if comp != "" {
		newMsg := fmt.Sprintf("[%s] %s", comp, r.Message)
		newRecord := slog.NewRecord(r.Time, r.Level, newMsg, r.PC)
		// The component attribute stays in the structured payload; only the
		// display message gets the prefix.
		r.Attrs(func(a slog.Attr) bool {
			newRecord.AddAttrs(a)
			return true
		})
		r = newRecord
	}

	return h.Handler.Handle(ctx, r)
}

// InitLogger configures structured logging with Cloud Logging compatible keys
func InitLogger() {
	opts := GetSlogHandlerOptions(slog.LevelInfo)
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(&ComponentHandler{Handler: handler})
	slog.SetDefault(logger)
}

// NewLogger creates a configured logger instance
func NewLogger(serviceName string) *slog.Logger {
	logLevelStr := os.Getenv("LOG_LEVEL")
	var level slog.Level
	switch strings.ToLower(logLevelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := GetSlogHandlerOptions(level)
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(&ComponentHandler{Handler: handler}).With("service", serviceName)
}

// NewService initializes all standard dependencies
func NewService(ctx context.Context) (*Service, error) {
	InitLogger()
	cfg := LoadConfig()

	slog.Info("Initializing service", "project_id", cfg.ProjectID, "env", cfg.Env)

	// Error tracking is best effort; a broken DSN never blocks startup.
	if err := sentryinfra.Init(sentryinfra.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Env,
	}, slog.Default()); err != nil {
		slog.Warn("Continuing without Sentry", "error", err)
	}

	// Firestore
	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("Firestore init failed", "error", err)
		return nil, fmt.Errorf("firestore init: %w", err)
	}

	// BigQuery
	bqClient, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("BigQuery init failed", "error", err)
		return nil, fmt.Errorf("bigquery init: %w", err)
	}

	// Storage
	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		slog.Error("Storage init failed", "error", err)
		return nil, fmt.Errorf("storage init: %w", err)
	}

	// Secret Manager
	smClient, err := secretmanager.NewClient(ctx)
	if err != nil {
		slog.Error("Secret Manager init failed", "error", err)
		return nil, fmt.Errorf("secretmanager init: %w", err)
	}

	// Pub/Sub
	var pubAdapter shared.Publisher
	if cfg.EnablePublish {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			slog.Error("PubSub init failed", "error", err)
			return nil, fmt.Errorf("pubsub init: %w", err)
		}
		pubAdapter = &infrapubsub.PubSubAdapter{Client: psClient}
		slog.Info("Pub/Sub: REAL (ENABLE_PUBLISH=true)")
	} else {
		pubAdapter = &infrapubsub.LogPublisher{}
		slog.Info("Pub/Sub: MOCK (LogPublisher)")
	}

	return &Service{
		DB:        database.NewFirestoreAdapter(fsClient),
		Store:     &infrastorage.StorageAdapter{Client: gcsClient},
		Warehouse: &warehouse.BigQueryAdapter{Client: bqClient},
		Pub:       pubAdapter,
		Secrets:   secrets.NewSecretsAdapter(smClient),
		Config:    cfg,
	}, nil
}
