package configstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/unigate/errors"
	"github.com/c360/unigate/natsclient"
	"github.com/c360/unigate/pkg/retry"
	"github.com/c360/unigate/route"
)

// KVStore adapts a JetStream Key-Value bucket to the Store boundary. Each
// route document is one JSON value keyed by its route ID; the entry
// revision becomes the document version and the highest revision seen is
// the set's revision token.
//
// The durable store itself lives in the NATS server - this adapter only
// reads and writes documents on behalf of reload and admin tooling.
type KVStore struct {
	client *natsclient.Client
	bucket string
	logger *slog.Logger
	retry  retry.Config
}

// NewKVStore creates a KV-backed store adapter
func NewKVStore(client *natsclient.Client, bucket string, logger *slog.Logger) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "KVStore", "NewKVStore",
			"NATS client is required")
	}
	if bucket == "" {
		bucket = "unigate_routes"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &KVStore{
		client: client,
		bucket: bucket,
		logger: logger,
		retry:  retry.DefaultConfig(),
	}, nil
}

// ListRoutes implements Store. Transient bucket errors are retried with
// backoff; a document that fails to unmarshal fails the whole listing so
// the registry keeps its previous snapshot rather than silently losing a
// route.
func (s *KVStore) ListRoutes(ctx context.Context) ([]route.Route, uint64, error) {
	result, err := retry.DoWithResult(ctx, s.retry, func() (kvListing, error) {
		return s.listOnce(ctx)
	})
	if err != nil {
		return nil, 0, err
	}
	return result.routes, result.revision, nil
}

// kvListing is one consistent read of the bucket
type kvListing struct {
	routes   []route.Route
	revision uint64
}

func (s *KVStore) listOnce(ctx context.Context) (kvListing, error) {
	var out kvListing

	kv, err := s.client.KeyValue(ctx, s.bucket)
	if err != nil {
		return out, err
	}

	keys, err := kv.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return out, nil
		}
		return out, errors.WrapTransient(err, "KVStore", "ListRoutes", "list keys")
	}

	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			if stderrors.Is(err, jetstream.ErrKeyNotFound) {
				// Deleted between Keys and Get
				continue
			}
			return out, errors.WrapTransient(err, "KVStore", "ListRoutes",
				"get document "+key)
		}

		var r route.Route
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			return out, retry.NonRetryable(errors.WrapInvalid(err, "KVStore", "ListRoutes",
				"unmarshal document "+key))
		}

		r.Version = entry.Revision()
		if entry.Revision() > out.revision {
			out.revision = entry.Revision()
		}
		if r.Deleted {
			continue
		}
		out.routes = append(out.routes, r)
	}

	s.logger.Debug("listed route documents",
		"bucket", s.bucket,
		"count", len(out.routes),
		"revision", out.revision)
	return out, nil
}

// PutRoute creates or replaces a route document and returns its revision.
// Intended for admin tooling and tests; the gateway request path never
// writes.
func (s *KVStore) PutRoute(ctx context.Context, r route.Route) (uint64, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return 0, errors.WrapInvalid(err, "KVStore", "PutRoute", "marshal document "+r.ID)
	}

	kv, err := s.client.KeyValue(ctx, s.bucket)
	if err != nil {
		return 0, err
	}

	rev, err := kv.Put(ctx, r.ID, data)
	if err != nil {
		return 0, errors.WrapTransient(err, "KVStore", "PutRoute", "put document "+r.ID)
	}
	return rev, nil
}

// MarkDeleted tombstones a route document so the next reload excludes it
func (s *KVStore) MarkDeleted(ctx context.Context, id string) error {
	kv, err := s.client.KeyValue(ctx, s.bucket)
	if err != nil {
		return err
	}

	entry, err := kv.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return errors.WrapInvalid(err, "KVStore", "MarkDeleted", "document "+id+" not found")
		}
		return errors.WrapTransient(err, "KVStore", "MarkDeleted", "get document "+id)
	}

	var r route.Route
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return errors.WrapInvalid(err, "KVStore", "MarkDeleted", "unmarshal document "+id)
	}
	r.Deleted = true

	data, err := json.Marshal(r)
	if err != nil {
		return errors.WrapInvalid(err, "KVStore", "MarkDeleted", "marshal document "+id)
	}
	if _, err := kv.Update(ctx, id, data, entry.Revision()); err != nil {
		return errors.WrapTransient(err, "KVStore", "MarkDeleted", "update document "+id)
	}
	return nil
}
