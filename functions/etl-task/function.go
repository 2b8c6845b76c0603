package etltask

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/fitnessllm/dataplatform/pkg/bootstrap"
	"github.com/fitnessllm/dataplatform/pkg/framework"
	"github.com/fitnessllm/dataplatform/pkg/orchestrator"
	"github.com/fitnessllm/dataplatform/pkg/types"

	_ "github.com/fitnessllm/dataplatform/pkg/sources/strava"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("RunETLTask", RunETLTask)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	if svc != nil {
		return svc, nil
	}
	svcOnce.Do(func() {
		baseSvc, err := bootstrap.NewService(ctx)
		if err != nil {
			slog.Error("Failed to initialize service", "error", err)
			svcErr = err
			return
		}
		svc = baseSvc
	})
	return svc, svcErr
}

// RunETLTask is the entry point
func RunETLTask(ctx context.Context, e event.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %v", err)
	}
	return framework.WrapCloudEvent("etl-task", svc, taskHandler)(ctx, e)
}

func taskHandler(ctx context.Context, e event.Event, fwCtx *framework.FrameworkContext) (interface{}, error) {
	var msg types.PubSubMessage
	if err := e.DataAs(&msg); err != nil {
		return nil, fmt.Errorf("decode pubsub envelope: %w", err)
	}

	var payload types.ETLTaskPayload
	if err := json.Unmarshal(msg.Message.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode task payload: %w", err)
	}
	if payload.UserID == "" {
		return nil, fmt.Errorf("task payload missing user_id")
	}
	if payload.DataSource == "" {
		payload.DataSource = "strava"
	}

	stages, err := types.ParseStages(payload.Stages)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.FromService(ctx, fwCtx.Service, payload.DataSource, payload.Streams)
	if err != nil {
		return nil, err
	}

	result := orch.Run(ctx, payload.UserID, stages)

	outputs := map[string]interface{}{
		"user_id":     result.UserID,
		"data_source": result.DataSource,
		"stages":      stages,
	}
	if result.Pull != nil {
		outputs["pull"] = result.Pull
	}
	if result.Load != nil {
		outputs["load"] = result.Load
	}
	if !result.Succeeded() {
		outputs["failed_stage"] = string(result.FailedStage)
		return outputs, result.Err
	}
	return outputs, nil
}
