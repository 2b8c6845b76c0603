package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// FirestoreAdapter provides database operations using Firestore
type FirestoreAdapter struct {
	Client *firestore.Client
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{Client: client}
}

func (a *FirestoreAdapter) credentialDoc(userID, dataSource string) *firestore.DocumentRef {
	return a.Client.Collection(shared.CollectionUsers).Doc(userID).
		Collection(shared.CollectionStream).Doc(dataSource)
}

func (a *FirestoreAdapter) GetStreamCredential(ctx context.Context, userID, dataSource string) (*types.Credential, error) {
	doc, err := a.credentialDoc(userID, dataSource).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get credential %s/%s: %w", userID, dataSource, err)
	}
	var cred types.Credential
	if err := doc.DataTo(&cred); err != nil {
		return nil, fmt.Errorf("decode credential %s/%s: %w", userID, dataSource, err)
	}
	cred.UserID = userID
	if cred.DataSource == "" {
		cred.DataSource = dataSource
	}
	return &cred, nil
}

// UpdateStreamCredential merges the given fields into the credential
// document in a single write.
func (a *FirestoreAdapter) UpdateStreamCredential(ctx context.Context, userID, dataSource string, data map[string]interface{}) error {
	_, err := a.credentialDoc(userID, dataSource).Set(ctx, data, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("update credential %s/%s: %w", userID, dataSource, err)
	}
	return nil
}

// ListConnectedUsers returns the ids of all users with a connected
// credential for the data source, via a collection-group query over the
// per-user stream subcollections.
func (a *FirestoreAdapter) ListConnectedUsers(ctx context.Context, dataSource string) ([]string, error) {
	iter := a.Client.CollectionGroup(shared.CollectionStream).
		Where("dataSource", "==", dataSource).
		Where("connected", "==", true).
		Documents(ctx)
	defer iter.Stop()

	var userIDs []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list connected users for %s: %w", dataSource, err)
		}
		// users/{uid}/stream/{dataSource}
		userIDs = append(userIDs, doc.Ref.Parent.Parent.ID)
	}
	return userIDs, nil
}

func (a *FirestoreAdapter) SetExecution(ctx context.Context, record *types.ExecutionRecord) error {
	_, err := a.Client.Collection(shared.CollectionExecutions).Doc(record.ExecutionID).Set(ctx, record)
	return err
}

func (a *FirestoreAdapter) UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error {
	_, err := a.Client.Collection(shared.CollectionExecutions).Doc(id).Set(ctx, data, firestore.MergeAll)
	return err
}
