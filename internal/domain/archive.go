package domain

import (
	"context"
	"io"
	"time"
)

// ArchiveSink stores one finished archive object. size is the body length
// in bytes and lets the sink pick between a single request and a multipart
// upload.
type ArchiveSink interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
}

// Archiver moves opportunities detected before a cutoff out of the primary
// store.
type Archiver interface {
	ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error)
}
