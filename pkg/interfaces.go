package shared

import (
	"context"

	"github.com/fitnessllm/dataplatform/pkg/types"
)

// --- Persistence Interfaces ---

type Database interface {
	// Stream credentials (users/{uid}/stream/{dataSource})
	GetStreamCredential(ctx context.Context, userID, dataSource string) (*types.Credential, error)
	UpdateStreamCredential(ctx context.Context, userID, dataSource string, data map[string]interface{}) error
	ListConnectedUsers(ctx context.Context, dataSource string) ([]string, error)

	// Execution records
	SetExecution(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	Publish(ctx context.Context, topicID string, data []byte) (string, error)
}

// --- Storage Interfaces ---

type BlobStore interface {
	Write(ctx context.Context, bucket, object string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// --- Warehouse Interfaces ---

type Warehouse interface {
	Query(ctx context.Context, sql string) ([]map[string]interface{}, error)
	Insert(ctx context.Context, dataset, table string, rows []map[string]interface{}) error
	// RunScript executes a (possibly multi-statement) SQL script as a single job.
	RunScript(ctx context.Context, sql string) error
}

// --- Secret Interfaces ---

type SecretStore interface {
	GetSecret(ctx context.Context, projectID, name string) (string, error)
}
