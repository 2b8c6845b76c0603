package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	shared "github.com/fitnessllm/dataplatform/pkg"
)

// SecretsAdapter resolves secrets from Google Secret Manager
type SecretsAdapter struct {
	client *secretmanager.Client
}

func NewSecretsAdapter(client *secretmanager.Client) *SecretsAdapter {
	return &SecretsAdapter{client: client}
}

func (a *SecretsAdapter) GetSecret(ctx context.Context, projectID, name string) (string, error) {
	resp, err := a.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, name),
	})
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	return string(resp.GetPayload().GetData()), nil
}

// GetJSONSecret resolves a secret whose payload is a JSON object, e.g. the
// source API client pair {"client_id": ..., "client_secret": ...} or the
// encryption key document {"token": ...}.
func GetJSONSecret(ctx context.Context, store shared.SecretStore, projectID, name string) (map[string]string, error) {
	payload, err := store.GetSecret(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", name, err)
	}
	return values, nil
}
