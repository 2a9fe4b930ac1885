package escluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/cache"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/tlsutil"
)

const componentName = "escluster"

// datastream lookups are cached under a single key; ILM lookups by policy name.
const dsCacheKey = "datastreams"

// Client implements API over the official Elasticsearch Go client.
type Client struct {
	es      *elasticsearch.Client
	logger  *slog.Logger
	timeout time.Duration

	dsCache  cache.Cache[[]DataStream]
	ilmCache cache.Cache[map[string]string]
	cancel   context.CancelFunc
}

// NewClient builds a cluster client from configuration. The returned client
// owns background cache janitors; call Close when done.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", componentName)

	tlsCfg, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, errors.WrapInvalid(err, componentName, "NewClient", "load_tls_config")
	}

	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		APIKey:    cfg.APIKey,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, errors.WrapFatal(err, componentName, "NewClient", "create_client")
	}

	timeout, err := cfg.requestTimeout()
	if err != nil {
		return nil, errors.WrapInvalid(err, componentName, "NewClient", "parse_timeout")
	}
	ttl, err := cfg.cacheTTL()
	if err != nil {
		return nil, errors.WrapInvalid(err, componentName, "NewClient", "parse_cache_ttl")
	}

	cacheCtx, cancel := context.WithCancel(context.Background())
	dsCache, err := cache.NewTTL[[]DataStream](cacheCtx, ttl, ttl)
	if err != nil {
		cancel()
		return nil, errors.WrapFatal(err, componentName, "NewClient", "create_ds_cache")
	}
	ilmCache, err := cache.NewTTL[map[string]string](cacheCtx, ttl, ttl)
	if err != nil {
		cancel()
		return nil, errors.WrapFatal(err, componentName, "NewClient", "create_ilm_cache")
	}

	return &Client{
		es:       es,
		logger:   logger,
		timeout:  timeout,
		dsCache:  dsCache,
		ilmCache: ilmCache,
		cancel:   cancel,
	}, nil
}

// Close releases cache resources. The underlying HTTP transport has no
// explicit shutdown.
func (c *Client) Close() error {
	c.cancel()
	if err := c.dsCache.Close(); err != nil {
		return err
	}
	return c.ilmCache.Close()
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// decodeResponse closes the response body and decodes a success body into
// out. Error responses are classified: 404 is invalid (caller maps to a
// sentinel), everything else transient.
func decodeResponse(res *esapi.Response, method, action string, out any) error {
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		err := fmt.Errorf("%w: %s", errors.ErrClusterUnavailable, res.Status())
		if res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusBadRequest {
			return errors.WrapInvalid(err, componentName, method, action)
		}
		return errors.WrapTransient(err, componentName, method, action)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.WrapTransient(err, componentName, method, action+"_decode")
	}
	return nil
}

// systemIndex reports whether a name is a non-datastream system index.
// Backing indices (.ds-*) carry the data the pipeline measures and pass.
func systemIndex(name string) bool {
	return strings.HasPrefix(name, ".") && !strings.HasPrefix(name, ".ds-")
}

// ListIndices returns the cluster's index names, system indices filtered.
func (c *Client) ListIndices(ctx context.Context) ([]string, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	res, err := c.es.Cat.Indices(
		c.es.Cat.Indices.WithContext(ctx),
		c.es.Cat.Indices.WithFormat("json"),
		c.es.Cat.Indices.WithH("index"),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, componentName, "ListIndices", "cat_indices")
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := decodeResponse(res, "ListIndices", "cat_indices", &rows); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Index == "" || systemIndex(row.Index) {
			continue
		}
		names = append(names, row.Index)
	}
	return names, nil
}

// statsBody mirrors the subset of the indices stats response the pipeline
// reads.
type statsBody struct {
	Indices map[string]struct {
		Primaries struct {
			Store struct {
				SizeInBytes int64 `json:"size_in_bytes"`
			} `json:"store"`
			Docs struct {
				Count int64 `json:"count"`
			} `json:"docs"`
		} `json:"primaries"`
		Total struct {
			Store struct {
				SizeInBytes int64 `json:"size_in_bytes"`
			} `json:"store"`
		} `json:"total"`
		Shards map[string][]struct {
			Routing struct {
				Primary bool `json:"primary"`
			} `json:"routing"`
			Store struct {
				SizeInBytes int64 `json:"size_in_bytes"`
			} `json:"store"`
		} `json:"shards"`
	} `json:"indices"`
}

// IndexStats returns store size and doc count for one index.
func (c *Client) IndexStats(ctx context.Context, index string) (IndexStats, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	res, err := c.es.Indices.Stats(
		c.es.Indices.Stats.WithContext(ctx),
		c.es.Indices.Stats.WithIndex(index),
		c.es.Indices.Stats.WithMetric("store", "docs"),
	)
	if err != nil {
		return IndexStats{}, errors.WrapTransient(err, componentName, "IndexStats", "indices_stats")
	}

	var body statsBody
	if err := decodeResponse(res, "IndexStats", "indices_stats", &body); err != nil {
		return IndexStats{}, err
	}

	entry, ok := body.Indices[index]
	if !ok {
		return IndexStats{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrIndexNotFound, index),
			componentName, "IndexStats", "lookup")
	}

	return IndexStats{
		Index:            index,
		SizeBytes:        entry.Total.Store.SizeInBytes,
		PrimarySizeBytes: entry.Primaries.Store.SizeInBytes,
		DocsCount:        entry.Primaries.Docs.Count,
	}, nil
}

// ShardStats returns the primary/replica store split per index from one
// shard-level stats call.
func (c *Client) ShardStats(ctx context.Context) (map[string]ShardSizes, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	res, err := c.es.Indices.Stats(
		c.es.Indices.Stats.WithContext(ctx),
		c.es.Indices.Stats.WithLevel("shards"),
		c.es.Indices.Stats.WithMetric("store"),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, componentName, "ShardStats", "indices_stats")
	}

	var body statsBody
	if err := decodeResponse(res, "ShardStats", "indices_stats", &body); err != nil {
		return nil, err
	}

	out := make(map[string]ShardSizes, len(body.Indices))
	for name, entry := range body.Indices {
		var sizes ShardSizes
		for _, shardList := range entry.Shards {
			for _, shard := range shardList {
				if shard.Routing.Primary {
					sizes.PrimaryBytes += shard.Store.SizeInBytes
				} else {
					sizes.ReplicaBytes += shard.Store.SizeInBytes
				}
			}
		}
		out[name] = sizes
	}
	return out, nil
}

type searchBody struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// boundaryTimestamp fetches the single @timestamp at one end of the index.
// Missing field or empty index yields a zero time without error.
func (c *Client) boundaryTimestamp(ctx context.Context, index, sort string) (time.Time, error) {
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithSize(1),
		c.es.Search.WithSort(sort),
		c.es.Search.WithSourceIncludes("@timestamp"),
	)
	if err != nil {
		return time.Time{}, errors.WrapTransient(err, componentName, "FirstLastTimestamps", "search")
	}

	// Sorting on an unmapped field returns 400. Treat as "no timestamps".
	if res.StatusCode == http.StatusBadRequest || res.StatusCode == http.StatusNotFound {
		_ = res.Body.Close()
		return time.Time{}, nil
	}

	var body searchBody
	if err := decodeResponse(res, "FirstLastTimestamps", "search", &body); err != nil {
		return time.Time{}, err
	}
	if len(body.Hits.Hits) == 0 {
		return time.Time{}, nil
	}
	raw, ok := body.Hits.Hits[0].Source["@timestamp"].(string)
	if !ok {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Non-RFC3339 timestamps are skipped rather than fatal.
		return time.Time{}, nil
	}
	return ts, nil
}

// FirstLastTimestamps returns the earliest and latest @timestamp in the index.
func (c *Client) FirstLastTimestamps(ctx context.Context, index string) (TimestampRange, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	first, err := c.boundaryTimestamp(ctx, index, "@timestamp:asc")
	if err != nil {
		return TimestampRange{}, err
	}
	last, err := c.boundaryTimestamp(ctx, index, "@timestamp:desc")
	if err != nil {
		return TimestampRange{}, err
	}
	return TimestampRange{First: first, Last: last}, nil
}

// ActiveBetween reports whether the index has a document in [from, to).
func (c *Client) ActiveBetween(ctx context.Context, index string, from, to time.Time) (bool, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	query := map[string]any{
		"size": 1,
		"query": map[string]any{
			"range": map[string]any{
				"@timestamp": map[string]any{
					"gte": from.UTC().Format(time.RFC3339),
					"lt":  to.UTC().Format(time.RFC3339),
				},
			},
		},
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(esutil.NewJSONReader(query)),
		c.es.Search.WithAllowNoIndices(true),
	)
	if err != nil {
		return false, errors.WrapTransient(err, componentName, "ActiveBetween", "search")
	}

	// Range queries on indices without the field return 400; inactive.
	if res.StatusCode == http.StatusBadRequest {
		_ = res.Body.Close()
		return false, nil
	}

	var body searchBody
	if err := decodeResponse(res, "ActiveBetween", "search", &body); err != nil {
		return false, err
	}
	return body.Hits.Total.Value > 0, nil
}

// IndicesWithDataBetween lists indices with at least one document in the
// window. Per-index search errors skip the index with a warning.
func (c *Client) IndicesWithDataBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	indices, err := c.ListIndices(ctx)
	if err != nil {
		return nil, err
	}

	var active []string
	for _, index := range indices {
		ok, err := c.ActiveBetween(ctx, index, from, to)
		if err != nil {
			c.logger.Warn("skipping index after search error",
				"index", index, "error", err)
			continue
		}
		if ok {
			active = append(active, index)
		}
	}
	return active, nil
}

type dataStreamBody struct {
	DataStreams []struct {
		Name       string `json:"name"`
		Generation int    `json:"generation"`
		Template   string `json:"template"`
		ILMPolicy  string `json:"ilm_policy"`
		Indices    []struct {
			IndexName string `json:"index_name"`
		} `json:"indices"`
	} `json:"data_streams"`
}

// DataStreams returns all datastreams with backing indices, cached.
func (c *Client) DataStreams(ctx context.Context) ([]DataStream, error) {
	if cached, ok := c.dsCache.Get(dsCacheKey); ok {
		return cached, nil
	}

	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	res, err := c.es.Indices.GetDataStream(
		c.es.Indices.GetDataStream.WithContext(ctx),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, componentName, "DataStreams", "get_data_stream")
	}

	var body dataStreamBody
	if err := decodeResponse(res, "DataStreams", "get_data_stream", &body); err != nil {
		return nil, err
	}

	streams := make([]DataStream, 0, len(body.DataStreams))
	for _, ds := range body.DataStreams {
		backing := make([]string, 0, len(ds.Indices))
		for _, idx := range ds.Indices {
			backing = append(backing, idx.IndexName)
		}
		streams = append(streams, DataStream{
			Name:           ds.Name,
			Generation:     ds.Generation,
			BackingIndices: backing,
			Template:       ds.Template,
			ILMPolicy:      ds.ILMPolicy,
		})
	}

	if _, err := c.dsCache.Set(dsCacheKey, streams); err != nil {
		c.logger.Warn("datastream cache set failed", "error", err)
	}
	return streams, nil
}

// ILMPhases returns phase-name to compact-JSON summaries for a policy, cached.
func (c *Client) ILMPhases(ctx context.Context, policy string) (map[string]string, error) {
	if policy == "" {
		return nil, nil
	}
	if cached, ok := c.ilmCache.Get(policy); ok {
		return cached, nil
	}

	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	res, err := c.es.ILM.GetLifecycle(
		c.es.ILM.GetLifecycle.WithContext(ctx),
		c.es.ILM.GetLifecycle.WithPolicy(policy),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, componentName, "ILMPhases", "get_lifecycle")
	}

	var body map[string]struct {
		Policy struct {
			Phases map[string]json.RawMessage `json:"phases"`
		} `json:"policy"`
	}
	if err := decodeResponse(res, "ILMPhases", "get_lifecycle", &body); err != nil {
		return nil, err
	}

	entry, ok := body[policy]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: policy %s", errors.ErrIndexNotFound, policy),
			componentName, "ILMPhases", "lookup")
	}

	phases := make(map[string]string, len(entry.Policy.Phases))
	for phase, raw := range entry.Policy.Phases {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			c.logger.Warn("skipping malformed ILM phase",
				"policy", policy, "phase", phase, "error", err)
			continue
		}
		phases[phase] = buf.String()
	}

	if _, err := c.ilmCache.Set(policy, phases); err != nil {
		c.logger.Warn("ilm cache set failed", "policy", policy, "error", err)
	}
	return phases, nil
}

// Bulk indexes documents with caller-assigned IDs via the bulk indexer.
func (c *Client) Bulk(ctx context.Context, index string, docs []Document) (BulkStats, error) {
	if len(docs) == 0 {
		return BulkStats{}, nil
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     c.es,
		Index:      index,
		NumWorkers: 2,
	})
	if err != nil {
		return BulkStats{}, errors.WrapFatal(err, componentName, "Bulk", "create_indexer")
	}

	for _, doc := range docs {
		item := esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.ID,
			Body:       bytes.NewReader(doc.Source),
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				c.logger.Warn("bulk item failed",
					"doc_id", item.DocumentID,
					"status", res.Status,
					"reason", res.Error.Reason,
					"error", err)
			},
		}
		if err := bi.Add(ctx, item); err != nil {
			_ = bi.Close(ctx)
			return BulkStats{}, errors.WrapTransient(err, componentName, "Bulk", "add_item")
		}
	}

	if err := bi.Close(ctx); err != nil {
		return BulkStats{}, errors.WrapTransient(err, componentName, "Bulk", "flush")
	}

	stats := bi.Stats()
	out := BulkStats{
		Added:   stats.NumAdded,
		Flushed: stats.NumFlushed,
		Failed:  stats.NumFailed,
	}
	if out.Failed > 0 {
		return out, errors.WrapTransient(
			fmt.Errorf("bulk load: %d of %d documents failed", out.Failed, out.Added),
			componentName, "Bulk", "flush")
	}
	return out, nil
}
