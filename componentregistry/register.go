// Package componentregistry provides component registration for the
// ingest-calculator pipeline. All pipeline components register here so the
// service manager can instantiate them from configuration by name.
package componentregistry

import (
	"errors"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	pkgerrors "github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/input/clusterscan"
	"github.com/eijnar/es-daily-ingest-calculator/input/csvfile"
	"github.com/eijnar/es-daily-ingest-calculator/output/bulkload"
	"github.com/eijnar/es-daily-ingest-calculator/output/csvreport"
	"github.com/eijnar/es-daily-ingest-calculator/processor/classify"
	"github.com/eijnar/es-daily-ingest-calculator/processor/dsaggregate"
	"github.com/eijnar/es-daily-ingest-calculator/storage/snapshotstore"
)

// Register registers all pipeline components with the provided registry:
//
// Inputs (row sources):
//   - clusterscan: polls a live Elasticsearch cluster and emits inventory rows
//   - csvfile: replays semicolon-CSV inventory exports
//
// Processors:
//   - classify: decomposes index names and classifies environments
//   - dsaggregate: folds classified rows into per-datastream aggregates
//
// Outputs (sinks):
//   - csvreport: writes per-index and per-datastream CSV reports
//   - bulkload: bulk-indexes classified rows into an inventory index
//
// Storage:
//   - snapshotstore: persists completed scans as snapshot objects
func Register(registry *component.Registry) error {
	// CRITICAL: Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	// Inputs
	if err := clusterscan.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "clusterscan input component registration")
	}

	if err := csvfile.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "csvfile input component registration")
	}

	// Processors
	if err := classify.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "classify processor component registration")
	}

	if err := dsaggregate.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(
			err,
			"ComponentRegistry",
			"Register",
			"dsaggregate processor component registration",
		)
	}

	// Outputs
	if err := csvreport.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "csvreport output component registration")
	}

	if err := bulkload.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "bulkload output component registration")
	}

	// Storage
	if err := snapshotstore.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "snapshotstore storage component registration")
	}

	return nil
}
