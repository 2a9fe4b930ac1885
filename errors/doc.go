// Package errors classifies failures into three classes that decide what
// the pipeline does next: Transient (retry), Invalid (skip the record,
// count it), Fatal (stop).
//
// A scan hitting a flapping cluster should back off and retry; a CSV row
// with a missing column should be skipped and counted; a broken config
// should stop the process before it writes a bad report. The classes
// encode those three reactions so components never match on error strings
// themselves.
//
// # Wrapping
//
// Every boundary wraps errors in the standard shape:
//
//	"component.method: action failed: %w"
//
//	if err := idx.Stats(ctx, name); err != nil {
//	    return errors.WrapTransient(err, "escluster", "FetchStats", "stats lookup")
//	}
//
// WrapTransient, WrapInvalid and WrapFatal set the class; plain Wrap adds
// context without disturbing an existing classification. All of them pass
// nil through, so call sites skip the err != nil dance.
//
// # Classification
//
// IsTransient, IsInvalid and IsFatal check, in order: an explicit
// ClassifiedError in the chain, the package's sentinels, and finally
// message sniffing for errors from third-party clients (the ES client
// reports 429s and timeouts as plain strings). Unknown errors classify
// as transient: a wrong retry is cheaper than a wrongly dropped scan.
//
//	if err := publish(row); err != nil && errors.IsTransient(err) {
//	    return retry.Do(ctx, retry.DefaultConfig(), func() error {
//	        return publish(row)
//	    })
//	}
//
// # Sentinels
//
// Sentinels cover the conditions components branch on: lifecycle
// (ErrAlreadyStarted, ErrNotStarted), messaging (ErrCircuitOpen,
// ErrConnectionLost), cluster access (ErrClusterUnavailable,
// ErrIndexNotFound, ErrNoDocuments), record handling (ErrParsingFailed,
// ErrMissingColumn), snapshot storage (ErrSnapshotNotFound) and
// configuration (ErrInvalidConfig, ErrMissingConfig). Prefer a sentinel
// over a bespoke message: errors.Is only works when both sides agree on
// the value.
//
// Everything here composes with the standard library: ClassifiedError
// implements Unwrap, the sentinels are plain errors, and classification
// survives any number of %w wraps.
//
// RetryConfig expresses a retry policy against these classes and converts
// to pkg/retry's Config via ToRetryConfig for execution.
package errors
