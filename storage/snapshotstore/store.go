package snapshotstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/metric"
	"github.com/eijnar/es-daily-ingest-calculator/natsclient"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/cache"
	"github.com/eijnar/es-daily-ingest-calculator/storage"
)

// Store is the NATS JetStream object-store backend for scan snapshots.
// It implements storage.Store with an in-memory read cache in front of
// the bucket.
type Store struct {
	bucketName string
	bucket     jetstream.ObjectStore
	cache      cache.Cache[[]byte]
	metrics    *storeMetrics
}

var _ storage.Store = (*Store)(nil)

// NewStore creates or binds the snapshot bucket and wraps it with the
// configured read cache. The metrics registry may be nil.
func NewStore(
	ctx context.Context,
	natsClient *natsclient.Client,
	cfg Config,
	registry *metric.MetricsRegistry,
) (*Store, error) {
	if natsClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "SnapshotStore", "NewStore", "NATS client required")
	}

	bucket, err := natsClient.CreateObjectStoreBucket(ctx, jetstream.ObjectStoreConfig{
		Bucket:      cfg.BucketName,
		Description: "Completed scan snapshots",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "SnapshotStore", "NewStore",
			fmt.Sprintf("create bucket %s", cfg.BucketName))
	}

	dataCache, err := cache.NewFromConfig[[]byte](ctx, cfg.DataCache)
	if err != nil {
		return nil, errors.WrapInvalid(err, "SnapshotStore", "NewStore", "create read cache")
	}

	metrics, err := newStoreMetrics(registry, cfg.BucketName)
	if err != nil {
		return nil, err
	}

	return &Store{
		bucketName: cfg.BucketName,
		bucket:     bucket,
		cache:      dataCache,
		metrics:    metrics,
	}, nil
}

// Put stores snapshot data under the given key and refreshes the cache.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	_, err := s.bucket.PutBytes(ctx, key, data)
	s.metrics.recordLatency("put", time.Since(start).Seconds())
	if err != nil {
		s.metrics.recordError("put")
		return errors.WrapTransient(err, "SnapshotStore", "Put", fmt.Sprintf("store %s", key))
	}
	s.metrics.recordOp("put")

	// Cache write errors are non-fatal; the bucket is the source of truth.
	_, _ = s.cache.Set(key, data)
	return nil
}

// Get retrieves snapshot data for the given key, serving from the cache
// when possible.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if data, ok := s.cache.Get(key); ok {
		s.metrics.recordCacheHit()
		s.metrics.recordOp("get")
		return data, nil
	}
	s.metrics.recordCacheMiss()

	start := time.Now()
	data, err := s.bucket.GetBytes(ctx, key)
	s.metrics.recordLatency("get", time.Since(start).Seconds())
	if err != nil {
		s.metrics.recordError("get")
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, errors.WrapInvalid(errors.ErrSnapshotNotFound, "SnapshotStore", "Get", key)
		}
		return nil, errors.WrapTransient(err, "SnapshotStore", "Get", fmt.Sprintf("retrieve %s", key))
	}
	s.metrics.recordOp("get")

	_, _ = s.cache.Set(key, data)
	return data, nil
}

// List returns all keys matching the prefix in lexicographic order. An
// empty prefix lists every snapshot in the bucket.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	infos, err := s.bucket.List(ctx)
	s.metrics.recordLatency("list", time.Since(start).Seconds())
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoObjectsFound) {
			s.metrics.recordOp("list")
			return []string{}, nil
		}
		s.metrics.recordError("list")
		return nil, errors.WrapTransient(err, "SnapshotStore", "List", fmt.Sprintf("list prefix %q", prefix))
	}
	s.metrics.recordOp("list")

	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		if prefix == "" || strings.HasPrefix(info.Name, prefix) {
			keys = append(keys, info.Name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the snapshot at the given key. Deleting a missing key
// is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.bucket.Delete(ctx, key)
	s.metrics.recordLatency("delete", time.Since(start).Seconds())
	if err != nil && !stderrors.Is(err, jetstream.ErrObjectNotFound) {
		s.metrics.recordError("delete")
		return errors.WrapTransient(err, "SnapshotStore", "Delete", fmt.Sprintf("delete %s", key))
	}
	s.metrics.recordOp("delete")

	_, _ = s.cache.Delete(key)
	return nil
}

// Close releases cache resources. The bucket itself is owned by the
// NATS client.
func (s *Store) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}
