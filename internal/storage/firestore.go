package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/pkce-front/internal/crypto"
	"github.com/dgellow/pkce-front/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure FirestoreStorage implements Store
var _ Store = (*FirestoreStorage)(nil)

// FirestoreStorage stores one document per scope in a collection.
// Values are encrypted before they leave the process.
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
	encryptor  crypto.Encryptor
}

// ScopeDoc represents a scope document in Firestore
type ScopeDoc struct {
	Values    map[string]string `firestore:"values"` // encrypted
	UpdatedAt time.Time         `firestore:"updated_at"`
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}

	// Validate required parameters
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		collection: collection,
		encryptor:  encryptor,
	}, nil
}

func (s *FirestoreStorage) doc(scope string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(scope)
}

// Get returns the decrypted value stored under key in scope
func (s *FirestoreStorage) Get(ctx context.Context, scope, key string) (string, error) {
	snap, err := s.doc(scope).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get scope from Firestore: %w", err)
	}

	var scopeDoc ScopeDoc
	if err := snap.DataTo(&scopeDoc); err != nil {
		return "", fmt.Errorf("failed to unmarshal scope: %w", err)
	}

	encrypted, ok := scopeDoc.Values[key]
	if !ok {
		return "", ErrNotFound
	}
	value, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return value, nil
}

// Set encrypts value and merges it into the scope document
func (s *FirestoreStorage) Set(ctx context.Context, scope, key, value string) error {
	encrypted, err := s.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}

	_, err = s.doc(scope).Set(ctx, map[string]any{
		"values":     map[string]any{key: encrypted},
		"updated_at": time.Now(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to store value in Firestore: %w", err)
	}
	return nil
}

// Delete removes key from the scope document
func (s *FirestoreStorage) Delete(ctx context.Context, scope, key string) error {
	_, err := s.doc(scope).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"values", key}, Value: firestore.Delete},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to delete value from Firestore: %w", err)
	}
	return nil
}

// CleanupExpired removes scope documents not written for olderThan
func (s *FirestoreStorage) CleanupExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	iter := s.client.Collection(s.collection).
		Where("updated_at", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0
	const maxBatchSize = 500 // Firestore batch write limit

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired scopes: %w", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}

	return count, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
