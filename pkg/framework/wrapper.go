package framework

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/fitnessllm/dataplatform/pkg/bootstrap"
	"github.com/fitnessllm/dataplatform/pkg/execution"
	sentryinfra "github.com/fitnessllm/dataplatform/pkg/infrastructure/sentry"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// FrameworkContext contains dependencies injected by the framework.
type FrameworkContext struct {
	Service     *bootstrap.Service
	Logger      *slog.Logger
	ExecutionID string
}

// HandlerFunc is the signature for a cloud function handler.
type HandlerFunc func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error)

// WrapCloudEvent wraps a handler with automatic execution logging.
// Handles both HTTP and Pub/Sub triggers.
func WrapCloudEvent(serviceName string, svc *bootstrap.Service, handler HandlerFunc) func(context.Context, event.Event) error {
	return func(ctx context.Context, e event.Event) error {
		userID := extractUserID(e)

		triggerType := "pubsub"
		if e.Type() == "google.cloud.functions.http" {
			triggerType = "http"
		}

		logLevelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
		var logLevel slog.Level
		switch logLevelStr {
		case "debug":
			logLevel = slog.LevelDebug
		case "info":
			logLevel = slog.LevelInfo
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}

		opts := bootstrap.GetSlogHandlerOptions(logLevel)
		logger := slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("service", serviceName)
		if userID != "" {
			logger = logger.With("user_id", userID)
		}

		execID, err := execution.LogStart(ctx, svc.DB, serviceName, execution.Options{
			UserID:      userID,
			TriggerType: triggerType,
		})
		if err != nil {
			logger.Error("Failed to log execution start", "error", err)
			// Continue anyway - don't fail the function just because logging failed
		}

		logger = logger.With("execution_id", execID)
		logger.Info("Function started")

		fwCtx := &FrameworkContext{
			Service:     svc,
			Logger:      logger,
			ExecutionID: execID,
		}

		outputs, handlerErr := handler(ctx, e, fwCtx)

		if handlerErr != nil {
			logger.Error("Function failed", "error", handlerErr)
			sentryinfra.CaptureException(handlerErr, map[string]interface{}{
				"service":      serviceName,
				"execution_id": execID,
			}, logger)
			sentryinfra.Flush(2 * time.Second)
			if logErr := execution.LogFailure(ctx, svc.DB, execID, handlerErr, outputs); logErr != nil {
				logger.Warn("Failed to log execution failure", "error", logErr)
			}
			return handlerErr
		}

		logger.Info("Function completed successfully")
		if logErr := execution.LogSuccess(ctx, svc.DB, execID, outputs); logErr != nil {
			logger.Warn("Failed to log execution success", "error", logErr)
		}

		return nil
	}
}

// extractUserID pulls the user id out of a Pub/Sub payload so execution
// records and logs can be attributed before the handler runs.
func extractUserID(e event.Event) string {
	var msg types.PubSubMessage
	if err := e.DataAs(&msg); err != nil {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Message.Data, &payload); err != nil {
		return ""
	}
	if uid, ok := payload["user_id"].(string); ok {
		return uid
	}
	if uid, ok := payload["userId"].(string); ok {
		return uid
	}
	return ""
}
