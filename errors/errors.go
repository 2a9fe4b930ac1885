package errors

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/pkg/retry"
)

// ErrorClass drives how a caller reacts to a failure: retry it, skip the
// record, or stop the pipeline.
type ErrorClass int

const (
	// ErrorTransient errors may succeed on retry (cluster hiccups,
	// timeouts, an open circuit).
	ErrorTransient ErrorClass = iota
	// ErrorInvalid errors come from bad input (a malformed CSV row, an
	// index name that fails validation) and will not improve on retry.
	ErrorInvalid
	// ErrorFatal errors mean the process cannot continue (broken config,
	// corrupted state).
	ErrorFatal
)

var classNames = [...]string{"transient", "invalid", "fatal"}

// String returns the lowercase class name used in logs.
func (ec ErrorClass) String() string {
	if ec < 0 || int(ec) >= len(classNames) {
		return "unknown"
	}
	return classNames[ec]
}

// Sentinel errors. Callers branch with errors.Is; the classification
// helpers below know which class each belongs to.
var (
	// Component lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Messaging errors
	ErrNoConnection       = errors.New("no connection available")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrSubscriptionFailed = errors.New("subscription failed")
	ErrCircuitOpen        = errors.New("circuit breaker open")

	// Cluster access errors
	ErrClusterUnavailable = errors.New("cluster unavailable")
	ErrIndexNotFound      = errors.New("index not found")
	ErrNoDocuments        = errors.New("index has no documents")

	// Record handling errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")
	ErrMissingColumn = errors.New("required column missing")

	// Snapshot storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrSnapshotNotFound   = errors.New("snapshot not found")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError carries the class plus the component and operation that
// produced it, so a log line can say which part of the pipeline failed.
type ClassifiedError struct {
	Class ErrorClass
	Err   error

	Component string
	Operation string
	Message   string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message == "" {
		return ce.Err.Error()
	}
	return ce.Message
}

func (ce *ClassifiedError) Unwrap() error { return ce.Err }

// Sentinel groups and message patterns used to classify errors that were
// never wrapped. The patterns catch errors from third-party clients that
// carry no sentinel at all.
var (
	transientSentinels = []error{
		ErrConnectionTimeout, ErrConnectionLost,
		ErrClusterUnavailable, ErrStorageUnavailable, ErrCircuitOpen,
		context.DeadlineExceeded, context.Canceled,
	}
	transientPatterns = []string{
		"timeout", "connection", "network", "temporary",
		"unavailable", "too many requests", "retry",
	}

	fatalSentinels = []error{ErrInvalidConfig, ErrMissingConfig}
	fatalPatterns  = []string{
		"fatal", "panic", "corrupted", "invalid config",
		"missing config", "out of memory", "disk full",
	}

	invalidSentinels = []error{ErrInvalidData, ErrParsingFailed, ErrMissingColumn}
)

func matchesAny(err error, sentinels []error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

func messageMatches(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// classOf reports the explicit class carried by a ClassifiedError in the
// chain, if any.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// IsTransient reports whether an error is worth retrying. Classified
// errors answer directly; unclassified ones are matched against the
// transient sentinels and, failing that, sniffed by message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}
	return matchesAny(err, transientSentinels) || messageMatches(err, transientPatterns)
}

// IsFatal reports whether an error should stop the pipeline.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorFatal
	}
	return matchesAny(err, fatalSentinels) || messageMatches(err, fatalPatterns)
}

// IsInvalid reports whether an error came from bad input. Invalid rows
// are skipped and counted, never retried.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorInvalid
	}
	return matchesAny(err, invalidSentinels)
}

// Classify maps any error onto an ErrorClass.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorTransient
	case IsTransient(err):
		return ErrorTransient
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		// Unknown errors default to transient so callers get a retry
		return ErrorTransient
	}
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class: class, Err: err, Message: message,
		Component: component, Operation: operation,
	}
}

// Wrap builds the standard "component.method: action failed: %w" error.
// Every boundary in the pipeline wraps with this shape so a failure in a
// nested call still names its origin.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapWithClass(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return newClassified(class, wrapped, component, method, wrapped.Error())
}

// WrapTransient wraps an error as transient with origin context.
func WrapTransient(err error, component, method, action string) error {
	return wrapWithClass(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps an error as fatal with origin context.
func WrapFatal(err error, component, method, action string) error {
	return wrapWithClass(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with origin context.
func WrapInvalid(err error, component, method, action string) error {
	return wrapWithClass(ErrorInvalid, err, component, method, action)
}

// RetryConfig expresses retry policy in terms of this package's
// classification; ToRetryConfig bridges it to pkg/retry for execution.
type RetryConfig struct {
	MaxRetries      int
	BackoffFactor   float64
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	RetryableErrors []error
}

// DefaultRetryConfig suits cluster API calls: three retries from 100ms
// doubling to a 5s cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BackoffFactor:   2.0,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		RetryableErrors: nil, // nil means retry all transient errors
	}
}

// ShouldRetry reports whether the attempt should be retried: the error
// must be transient, the attempt budget unspent, and, when RetryableErrors
// is set, the error must match one of them.
func (rc RetryConfig) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= rc.MaxRetries {
		return false
	}

	if !IsTransient(err) {
		return false
	}

	if len(rc.RetryableErrors) == 0 {
		return true
	}
	return slices.ContainsFunc(rc.RetryableErrors, func(target error) bool {
		return errors.Is(err, target)
	})
}

// ToRetryConfig converts RetryConfig to the retry package's Config type.
// MaxRetries counts additional attempts beyond the first, so the total
// attempt count gains one; jitter is enabled for production use.
func (rc RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rc.MaxRetries + 1,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.BackoffFactor,
		AddJitter:    true,
	}
}

// BackoffDelay returns the delay before the given attempt, capped at
// MaxDelay.
func (rc RetryConfig) BackoffDelay(attempt int) time.Duration {
	delay := rc.InitialDelay
	for ; attempt > 0 && delay < rc.MaxDelay; attempt-- {
		delay = time.Duration(float64(delay) * rc.BackoffFactor)
	}
	return min(delay, rc.MaxDelay)
}
