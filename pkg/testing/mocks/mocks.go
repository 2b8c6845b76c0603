package mocks

import (
	"context"
	"fmt"

	"github.com/fitnessllm/dataplatform/pkg/types"
)

// --- Mock Database ---
type MockDatabase struct {
	GetStreamCredentialFunc    func(ctx context.Context, userID, dataSource string) (*types.Credential, error)
	UpdateStreamCredentialFunc func(ctx context.Context, userID, dataSource string, data map[string]interface{}) error
	ListConnectedUsersFunc     func(ctx context.Context, dataSource string) ([]string, error)
	SetExecutionFunc           func(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecutionFunc        func(ctx context.Context, id string, data map[string]interface{}) error
}

func (m *MockDatabase) GetStreamCredential(ctx context.Context, userID, dataSource string) (*types.Credential, error) {
	if m.GetStreamCredentialFunc != nil {
		return m.GetStreamCredentialFunc(ctx, userID, dataSource)
	}
	return nil, fmt.Errorf("credential not found")
}
func (m *MockDatabase) UpdateStreamCredential(ctx context.Context, userID, dataSource string, data map[string]interface{}) error {
	if m.UpdateStreamCredentialFunc != nil {
		return m.UpdateStreamCredentialFunc(ctx, userID, dataSource, data)
	}
	return nil
}
func (m *MockDatabase) ListConnectedUsers(ctx context.Context, dataSource string) ([]string, error) {
	if m.ListConnectedUsersFunc != nil {
		return m.ListConnectedUsersFunc(ctx, dataSource)
	}
	return nil, nil
}
func (m *MockDatabase) SetExecution(ctx context.Context, record *types.ExecutionRecord) error {
	if m.SetExecutionFunc != nil {
		return m.SetExecutionFunc(ctx, record)
	}
	return nil
}
func (m *MockDatabase) UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateExecutionFunc != nil {
		return m.UpdateExecutionFunc(ctx, id, data)
	}
	return nil
}

// --- Mock Publisher ---
type MockPublisher struct {
	PublishFunc func(ctx context.Context, topicID string, data []byte) (string, error)
}

func (m *MockPublisher) Publish(ctx context.Context, topicID string, data []byte) (string, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topicID, data)
	}
	return "msg-id", nil
}

// --- Mock Storage ---
type MockBlobStore struct {
	WriteFunc func(ctx context.Context, bucket, object string, data []byte) error
	ReadFunc  func(ctx context.Context, bucket, object string) ([]byte, error)
	ListFunc  func(ctx context.Context, bucket, prefix string) ([]string, error)
}

func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	return nil
}
func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	return []byte("mock-data"), nil
}
func (m *MockBlobStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, bucket, prefix)
	}
	return nil, nil
}

// --- Mock Warehouse ---
type MockWarehouse struct {
	QueryFunc     func(ctx context.Context, sql string) ([]map[string]interface{}, error)
	InsertFunc    func(ctx context.Context, dataset, table string, rows []map[string]interface{}) error
	RunScriptFunc func(ctx context.Context, sql string) error
}

func (m *MockWarehouse) Query(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sql)
	}
	return nil, nil
}
func (m *MockWarehouse) Insert(ctx context.Context, dataset, table string, rows []map[string]interface{}) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, dataset, table, rows)
	}
	return nil
}
func (m *MockWarehouse) RunScript(ctx context.Context, sql string) error {
	if m.RunScriptFunc != nil {
		return m.RunScriptFunc(ctx, sql)
	}
	return nil
}

// --- Mock Secrets ---
type MockSecretStore struct {
	GetSecretFunc func(ctx context.Context, projectID, name string) (string, error)
}

func (m *MockSecretStore) GetSecret(ctx context.Context, projectID, name string) (string, error) {
	if m.GetSecretFunc != nil {
		return m.GetSecretFunc(ctx, projectID, name)
	}
	return "mock-secret-value", nil
}
