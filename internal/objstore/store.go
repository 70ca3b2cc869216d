// Package objstore persists pipeline artifacts: batch manifests and
// payloads, extracted facts, and per-task result summaries.
package objstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the object storage interface used by every pipeline stage.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// PutJSON marshals v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "objstore: marshal %s", key)
	}
	return s.Put(ctx, key, data, "application/json")
}

// GetJSON fetches key and unmarshals it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "objstore: unmarshal %s", key)
	}
	return nil
}
