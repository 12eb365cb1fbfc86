package events

import "time"

// SpecializeStart is emitted before a document is cut for a field filter.
// Fields is nil when no filter was given.
type SpecializeStart struct {
	Document string
	Fields   []string
}

// SpecializeFinish is emitted after a cut completes or fails.
type SpecializeFinish struct {
	Document string
	Fields   []string
	// Cached reports whether the full schema came from the cache.
	Cached   bool
	Err      error
	Duration time.Duration
}

// SchemaBuildStart is emitted when a document's full schema is not cached
// and is about to be built from files.
type SchemaBuildStart struct {
	Document string
}

// SchemaBuildFinish is emitted after a schema build.
type SchemaBuildFinish struct {
	Document  string
	Files     int
	Fragments int
	Err       error
	Duration  time.Duration
}

// ImportSkipped is emitted when a fragment file is imported more than once
// by the same document. The later import is ignored.
type ImportSkipped struct {
	Path string
	From string
}
