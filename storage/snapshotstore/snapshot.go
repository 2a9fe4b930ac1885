package snapshotstore

import (
	"fmt"
	"sort"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/message"
)

// SnapshotRow is one classified index row captured in a scan snapshot.
type SnapshotRow struct {
	IndexName        string  `json:"index_name"`
	Scheme           string  `json:"scheme"`
	Environment      string  `json:"environment"`
	SizeBytes        int64   `json:"size_bytes"`
	PrimarySizeBytes int64   `json:"primary_size_bytes"`
	DocsCount        int64   `json:"docs_count"`
	DailyIngestMB    float64 `json:"daily_ingest_mb"`
	FirstDocMs       int64   `json:"first_doc_ms,omitempty"`
	LastDocMs        int64   `json:"last_doc_ms,omitempty"`
	ActiveToday      bool    `json:"active_today"`
}

// Snapshot is the persisted record of one completed scan pass. It captures
// every classified row of the scan so reports can be replayed without
// touching the cluster again.
type Snapshot struct {
	Cluster    string        `json:"cluster"`
	ScanID     string        `json:"scan_id"`
	TakenAt    time.Time     `json:"taken_at"`
	IndexCount int           `json:"index_count"`
	Rows       []SnapshotRow `json:"rows"`
}

// keyRoot is the top-level key segment for all snapshot objects.
const keyRoot = "snapshots"

// snapshotKey builds the object key for one scan's snapshot.
// Keys are hierarchical: snapshots/<cluster>/<scan-id>.
func snapshotKey(cluster, scanID string) string {
	if cluster == "" {
		cluster = "unknown"
	}
	return fmt.Sprintf("%s/%s/%s", keyRoot, cluster, scanID)
}

// clusterPrefix returns the list prefix covering all snapshots of a cluster.
func clusterPrefix(cluster string) string {
	return keyRoot + "/" + cluster + "/"
}

// snapshotRow converts a classified row into its snapshot representation.
func snapshotRow(classified *message.ClassifiedRowPayload) SnapshotRow {
	row := classified.Row
	return SnapshotRow{
		IndexName:        row.IndexName,
		Scheme:           string(classified.Parsed.Scheme),
		Environment:      classified.Environment(),
		SizeBytes:        row.SizeBytes,
		PrimarySizeBytes: row.PrimarySizeBytes,
		DocsCount:        row.DocsCount,
		DailyIngestMB:    row.DailyIngestMB,
		FirstDocMs:       row.FirstDocMs,
		LastDocMs:        row.LastDocMs,
		ActiveToday:      row.ActiveToday,
	}
}

// buildSnapshot freezes one scan's accumulated rows into a Snapshot,
// rows sorted by index name for stable output.
func buildSnapshot(cluster, scanID string, rows map[string]SnapshotRow) *Snapshot {
	snap := &Snapshot{
		Cluster:    cluster,
		ScanID:     scanID,
		TakenAt:    time.Now().UTC(),
		IndexCount: len(rows),
		Rows:       make([]SnapshotRow, 0, len(rows)),
	}
	for _, row := range rows {
		snap.Rows = append(snap.Rows, row)
	}
	sort.Slice(snap.Rows, func(i, j int) bool { return snap.Rows[i].IndexName < snap.Rows[j].IndexName })
	return snap
}
