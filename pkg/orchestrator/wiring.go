package orchestrator

import (
	"context"
	"fmt"

	"github.com/fitnessllm/dataplatform/pkg/bootstrap"
	"github.com/fitnessllm/dataplatform/pkg/crypto"
	"github.com/fitnessllm/dataplatform/pkg/infrastructure/secrets"
	"github.com/fitnessllm/dataplatform/pkg/vault"
)

// FromService wires a vault and orchestrator out of the bootstrap
// service. Secret payloads are resolved once here, never per run.
func FromService(ctx context.Context, svc *bootstrap.Service, dataSource string, streams []string) (*Orchestrator, error) {
	cfg := svc.Config

	encryptionSecret := cfg.EncryptionSecret
	if encryptionSecret == "" {
		encryptionSecret = "encryption_key"
	}
	keyDoc, err := secrets.GetJSONSecret(ctx, svc.Secrets, cfg.ProjectID, encryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("resolve encryption key: %w", err)
	}
	cipher, err := crypto.NewTokenCipher(keyDoc["token"])
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}

	sourceSecret := cfg.SourceSecret
	if sourceSecret == "" {
		sourceSecret = dataSource
	}
	clientPair, err := secrets.GetJSONSecret(ctx, svc.Secrets, cfg.ProjectID, sourceSecret)
	if err != nil {
		return nil, fmt.Errorf("resolve %s client pair: %w", dataSource, err)
	}
	if clientPair["client_id"] == "" || clientPair["client_secret"] == "" {
		return nil, fmt.Errorf("secret %s missing client_id/client_secret", sourceSecret)
	}

	v := vault.New(svc.DB, cipher, clientPair["client_id"], clientPair["client_secret"])

	return New(svc.DB, svc.Store, svc.Warehouse, svc.Pub, v, Config{
		Env:          cfg.Env,
		BronzeBucket: cfg.BronzeBucket,
		DataSource:   dataSource,
		Streams:      streams,
		Sample:       cfg.Sample,
		Workers:      cfg.Workers,
	}), nil
}
