package clusterscan

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/escluster"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

var errInvalidStats = errors.WrapInvalid(errors.ErrIndexNotFound,
	"fakeAPI", "IndexStats", "scripted failure")

// fakeAPI scripts the cluster boundary for scanner tests.
type fakeAPI struct {
	indices    []string
	stats      map[string]escluster.IndexStats
	ranges     map[string]escluster.TimestampRange
	active     map[string]bool
	statsErr   error
	listErr    error
	statsCalls int
}

func (f *fakeAPI) ListIndices(_ context.Context) ([]string, error) {
	return f.indices, f.listErr
}

func (f *fakeAPI) IndexStats(_ context.Context, index string) (escluster.IndexStats, error) {
	f.statsCalls++
	if f.statsErr != nil {
		return escluster.IndexStats{}, f.statsErr
	}
	return f.stats[index], nil
}

func (f *fakeAPI) ShardStats(_ context.Context) (map[string]escluster.ShardSizes, error) {
	return nil, nil
}

func (f *fakeAPI) FirstLastTimestamps(_ context.Context, index string) (escluster.TimestampRange, error) {
	return f.ranges[index], nil
}

func (f *fakeAPI) ActiveBetween(_ context.Context, index string, _, _ time.Time) (bool, error) {
	return f.active[index], nil
}

func (f *fakeAPI) IndicesWithDataBetween(_ context.Context, _, _ time.Time) ([]string, error) {
	return nil, nil
}

func (f *fakeAPI) DataStreams(_ context.Context) ([]escluster.DataStream, error) {
	return nil, nil
}

func (f *fakeAPI) ILMPhases(_ context.Context, _ string) (map[string]string, error) {
	return nil, nil
}

func (f *fakeAPI) Bulk(_ context.Context, _ string, _ []escluster.Document) (escluster.BulkStats, error) {
	return escluster.BulkStats{}, nil
}

func newTestInput(t *testing.T, api escluster.API) *Input {
	t.Helper()
	in, err := NewInput(nil, component.Dependencies{
		Cluster:  api,
		Platform: types.PlatformMeta{Org: "platform-ops", Cluster: "logging-prod-eu1"},
	})
	require.NoError(t, err)
	return in.(*Input)
}

func TestDailyIngestMB(t *testing.T) {
	tests := []struct {
		name          string
		sizeBytes     int64
		durationHours float64
		want          float64
	}{
		{"zero duration yields zero", 1 << 30, 0, 0},
		{"exactly one day", 1 << 20, 24, 1.0},
		{"half day doubles the rate", 1 << 20, 12, 2.0},
		{"rounded to two decimals", 333, 24, 0.0}, // 333 bytes is ~0.0003 MB
		{"long-lived index scales down", 10 << 20, 240, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, dailyIngestMB(tt.sizeBytes, tt.durationHours), 0.001)
		})
	}
}

func TestClusterScanInput_Creation(t *testing.T) {
	in := newTestInput(t, &fakeAPI{})

	meta := in.Meta()
	assert.Equal(t, "clusterscan-input", meta.Name)
	assert.Equal(t, "input", meta.Type)
	assert.Equal(t, "logging-prod-eu1", in.cluster)

	assert.Empty(t, in.InputPorts())
	ports := in.OutputPorts()
	require.Len(t, ports, 2)
	assert.Equal(t, "rows", ports[0].Name)
	assert.Equal(t, "markers", ports[1].Name)
}

func TestClusterScanInput_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "24h", cfg.ScanInterval)
	assert.Equal(t, "100ms", cfg.PacingDelay)
	assert.Equal(t, 4, cfg.StatsWorkers)
	assert.Equal(t, "inventory.index.v1", cfg.Ports.Outputs[0].Subject)
}

func TestClusterScanInput_ConfigValidate(t *testing.T) {
	assert.Error(t, (&Config{ScanInterval: "often"}).Validate())
	assert.Error(t, (&Config{PacingDelay: "-"}).Validate())
	assert.Error(t, (&Config{StatsWorkers: -1}).Validate())
	assert.NoError(t, (&Config{ScanInterval: "0", PacingDelay: "0"}).Validate())
}

func TestClusterScanInput_ConfigOverrides(t *testing.T) {
	raw, err := json.Marshal(Config{ScanInterval: "0", PacingDelay: "1ms", StatsWorkers: 2})
	require.NoError(t, err)

	in, err := NewInput(raw, component.Dependencies{Cluster: &fakeAPI{}})
	require.NoError(t, err)

	scanner := in.(*Input)
	assert.Equal(t, time.Duration(0), scanner.scanInterval)
	assert.Equal(t, time.Millisecond, scanner.pacingDelay)
	assert.Equal(t, 2, scanner.statsWorkers)
}

func TestClusterScanInput_Initialize(t *testing.T) {
	// nil NATS client fails
	in := newTestInput(t, &fakeAPI{})
	assert.Error(t, in.Initialize())

	// nil cluster boundary fails too
	noCluster, err := NewInput(nil, component.Dependencies{})
	require.NoError(t, err)
	assert.Error(t, noCluster.(*Input).Initialize())
}

func TestClusterScanInput_StartWithoutNATS(t *testing.T) {
	in := newTestInput(t, &fakeAPI{})
	assert.Error(t, in.Start(context.Background()))
}

func TestBuildRow(t *testing.T) {
	first := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		stats: map[string]escluster.IndexStats{
			"metrics.payments.prod": {
				Index:            "metrics.payments.prod",
				SizeBytes:        4 << 20,
				PrimarySizeBytes: 2 << 20,
				DocsCount:        1000,
			},
		},
		ranges: map[string]escluster.TimestampRange{
			"metrics.payments.prod": {First: first, Last: first.Add(12 * time.Hour)},
		},
		active: map[string]bool{"metrics.payments.prod": true},
	}
	in := newTestInput(t, api)

	row, err := in.buildRow(context.Background(), "metrics.payments.prod", "scan1")
	require.NoError(t, err)

	assert.Equal(t, "logging-prod-eu1", row.Cluster)
	assert.Equal(t, "metrics.payments.prod", row.IndexName)
	assert.Equal(t, int64(4<<20), row.SizeBytes)
	assert.Equal(t, int64(2<<20), row.PrimarySizeBytes)
	assert.Equal(t, int64(1000), row.DocsCount)
	// primaries are 2 MB over 12h: doubled to a 24h rate
	assert.InDelta(t, 4.0, row.DailyIngestMB, 0.001)
	assert.True(t, row.ActiveToday)
	assert.Equal(t, first.UnixMilli(), row.FirstDocMs)
	assert.Equal(t, "scan1", row.ScanID)
}

func TestBuildRow_NoTimestamps(t *testing.T) {
	api := &fakeAPI{
		stats: map[string]escluster.IndexStats{
			"cold-index": {Index: "cold-index", PrimarySizeBytes: 1 << 20},
		},
	}
	in := newTestInput(t, api)

	row, err := in.buildRow(context.Background(), "cold-index", "scan1")
	require.NoError(t, err)

	assert.Zero(t, row.DailyIngestMB, "no timestamp range means no rate")
	assert.Zero(t, row.FirstDocMs)
	assert.Zero(t, row.LastDocMs)
	assert.False(t, row.ActiveToday)
}

func TestBuildRow_InvalidStatsNotRetried(t *testing.T) {
	api := &fakeAPI{
		statsErr: errInvalidStats,
	}
	in := newTestInput(t, api)

	_, err := in.buildRow(context.Background(), "gone-index", "scan1")
	require.Error(t, err)
	assert.Equal(t, 1, api.statsCalls, "invalid responses must not be retried")
}
