package timestamp_test

import (
	"fmt"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/pkg/timestamp"
)

// A replayed export row may carry its last-document time as an RFC3339
// string, a second-resolution epoch or epoch milliseconds; Parse
// normalizes all three.
func ExampleParse() {
	ts1 := timestamp.Parse("2024-01-15T00:00:00Z")
	fmt.Printf("RFC3339 parsed: %d\n", ts1)

	ts2 := timestamp.Parse(int64(1705276800))
	fmt.Printf("Unix seconds parsed: %d\n", ts2)

	ts3 := timestamp.Parse(int64(1705276800123))
	fmt.Printf("Unix milliseconds parsed: %d\n", ts3)

	// Output:
	// RFC3339 parsed: 1705276800000
	// Unix seconds parsed: 1705276800000
	// Unix milliseconds parsed: 1705276800123
}

// Format renders report timestamps; absent values stay empty so the
// report layer can substitute its own placeholder.
func ExampleFormat() {
	fmt.Printf("Formatted: %s\n", timestamp.Format(1705276800123))
	fmt.Printf("Absent: '%s'\n", timestamp.Format(0))

	// Output:
	// Formatted: 2024-01-15T00:00:00Z
	// Absent: ''
}

func ExampleToUnixMs() {
	firstDoc := time.Date(2024, 1, 15, 0, 0, 0, 123000000, time.UTC)
	fmt.Printf("first doc at: %d\n", timestamp.ToUnixMs(firstDoc))

	// An index without an @timestamp field reports the zero time
	fmt.Printf("no timestamps: %d\n", timestamp.ToUnixMs(time.Time{}))

	// Output:
	// first doc at: 1705276800123
	// no timestamps: 0
}

func ExampleFromUnixMs() {
	t := timestamp.FromUnixMs(1705276800123)
	fmt.Printf("as time.Time: %s\n", t.UTC().Format(time.RFC3339))
	fmt.Printf("absent stays zero: %v\n", timestamp.FromUnixMs(0).IsZero())

	// Output:
	// as time.Time: 2024-01-15T00:00:00Z
	// absent stays zero: true
}
