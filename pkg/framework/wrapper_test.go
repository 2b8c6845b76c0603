package framework

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/fitnessllm/dataplatform/pkg/bootstrap"
	"github.com/fitnessllm/dataplatform/pkg/testing/mocks"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

func TestWrapCloudEvent(t *testing.T) {
	var statuses []string
	mockDB := &mocks.MockDatabase{
		SetExecutionFunc: func(ctx context.Context, record *types.ExecutionRecord) error {
			statuses = append(statuses, record.Status)
			return nil
		},
		UpdateExecutionFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			if s, ok := data["status"].(string); ok {
				statuses = append(statuses, s)
			}
			return nil
		},
	}

	svc := &bootstrap.Service{DB: mockDB}

	handler := func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error) {
		if fwCtx.Service != svc {
			t.Error("Service not injected correctly")
		}
		if fwCtx.ExecutionID == "" {
			t.Error("ExecutionID not generated")
		}
		return map[string]interface{}{"ok": true}, nil
	}

	wrapped := WrapCloudEvent("test-service", svc, handler)

	e := event.New()
	e.SetType("google.cloud.pubsub.topic.v1.messagePublished")
	e.SetSource("test-source")

	if err := wrapped(context.Background(), e); err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	if len(statuses) != 2 || statuses[0] != types.ExecutionStarted || statuses[1] != types.ExecutionSuccess {
		t.Errorf("Unexpected status sequence: %v", statuses)
	}
}

func TestWrapCloudEvent_Failure(t *testing.T) {
	var lastStatus string
	mockDB := &mocks.MockDatabase{
		SetExecutionFunc: func(ctx context.Context, record *types.ExecutionRecord) error {
			return nil
		},
		UpdateExecutionFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			if s, ok := data["status"].(string); ok {
				lastStatus = s
			}
			return nil
		},
	}

	svc := &bootstrap.Service{DB: mockDB}

	handler := func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error) {
		return nil, errors.New("simulated error")
	}

	wrapped := WrapCloudEvent("test-service", svc, handler)

	e := event.New()
	if err := wrapped(context.Background(), e); err == nil {
		t.Fatal("Expected error, got nil")
	}
	if lastStatus != types.ExecutionFailed {
		t.Errorf("Expected FAILED status, got %q", lastStatus)
	}
}

func TestWrapCloudEvent_ExtractsUserID(t *testing.T) {
	var recordedUser string
	mockDB := &mocks.MockDatabase{
		SetExecutionFunc: func(ctx context.Context, record *types.ExecutionRecord) error {
			recordedUser = record.UserID
			return nil
		},
	}

	svc := &bootstrap.Service{DB: mockDB}

	handler := func(ctx context.Context, e event.Event, fwCtx *FrameworkContext) (interface{}, error) {
		return nil, nil
	}

	wrapped := WrapCloudEvent("test-service", svc, handler)

	payload, _ := json.Marshal(map[string]string{"user_id": "user-123"})
	var msg types.PubSubMessage
	msg.Message.Data = payload

	e := event.New()
	e.SetType("google.cloud.pubsub.topic.v1.messagePublished")
	e.SetSource("//pubsub")
	if err := e.SetData(event.ApplicationJSON, msg); err != nil {
		t.Fatal(err)
	}

	if err := wrapped(context.Background(), e); err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	if recordedUser != "user-123" {
		t.Errorf("Expected user-123, got %q", recordedUser)
	}
}
