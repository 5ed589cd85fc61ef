package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	archiveLockKey   = "archive:opportunities"
	archiveLockTTL   = 10 * time.Minute
)

// OpportunitySource is the slice of domain.OpportunityStore the archiver
// needs.
type OpportunitySource interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ArbitrageOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ObjectChecker reports whether an object already exists.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// ArchiverConfig wires an OpportunityArchiver.
type ArchiverConfig struct {
	Writer domain.ArchiveSink
	Exists ObjectChecker // optional
	Store  OpportunitySource
	Locks  domain.LockManager // optional
	Prefix string
	Logger *slog.Logger
	Now    func() time.Time
}

// OpportunityArchiver implements domain.Archiver. It writes every opportunity
// detected before the cutoff as one JSONL object of opportunity records and
// only then deletes those rows from the store.
type OpportunityArchiver struct {
	cfg    ArchiverConfig
	logger *slog.Logger
}

// NewArchiver creates an OpportunityArchiver.
func NewArchiver(cfg ArchiverConfig) *OpportunityArchiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "opportunities"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpportunityArchiver{cfg: cfg, logger: logger.With(slog.String("component", "archiver"))}
}

// ArchiveOpportunities moves opportunities older than before to object
// storage and returns how many were archived. It returns domain.ErrLockHeld
// when another process is already archiving.
func (a *OpportunityArchiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	if a.cfg.Locks != nil {
		unlock, err := a.cfg.Locks.Acquire(ctx, archiveLockKey, archiveLockTTL)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive lock: %w", err)
		}
		defer unlock()
	}

	opps, err := a.cfg.Store.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list opportunities: %w", err)
	}
	if len(opps) == 0 {
		a.logger.InfoContext(ctx, "nothing to archive", slog.Time("before", before))
		return 0, nil
	}

	buf, err := marshalRecords(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: encode archive: %w", err)
	}

	key, err := a.objectKey(ctx, before)
	if err != nil {
		return 0, err
	}
	if err := a.cfg.Writer.Upload(ctx, key, bytes.NewReader(buf), int64(len(buf))); err != nil {
		return 0, fmt.Errorf("s3blob: upload archive: %w", err)
	}

	deleted, err := a.cfg.Store.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(opps)), fmt.Errorf("s3blob: delete archived rows: %w", err)
	}
	if deleted != int64(len(opps)) {
		a.logger.WarnContext(ctx, "archived and deleted counts differ",
			slog.Int("archived", len(opps)),
			slog.Int64("deleted", deleted),
		)
	}

	a.logger.InfoContext(ctx, "opportunities archived",
		slog.String("key", key),
		slog.Int("count", len(opps)),
		slog.Int("bytes", len(buf)),
	)
	return int64(len(opps)), nil
}

// objectKey returns <prefix>/<YYYY-MM>/<cutoff>.jsonl, adding a run suffix
// when an object with that name was already written.
func (a *OpportunityArchiver) objectKey(ctx context.Context, before time.Time) (string, error) {
	base := archivePath(a.cfg.Prefix, before)
	if a.cfg.Exists == nil {
		return base, nil
	}
	exists, err := a.cfg.Exists.Exists(ctx, base)
	if err != nil {
		return "", fmt.Errorf("s3blob: check %s: %w", base, err)
	}
	if !exists {
		return base, nil
	}
	return fmt.Sprintf("%s.%d.jsonl", base[:len(base)-len(".jsonl")], a.cfg.Now().UnixNano()), nil
}

func archivePath(prefix string, before time.Time) string {
	before = before.UTC()
	return path.Join(prefix, before.Format("2006-01"), before.Format("20060102T150405Z")+".jsonl")
}

// marshalRecords writes one compact opportunity record per line.
func marshalRecords(opps []domain.ArbitrageOpportunity) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, o := range opps {
		if err := enc.Encode(o.Record()); err != nil {
			return nil, fmt.Errorf("record %s: %w", o.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// IsLockHeld reports whether err means another archiver holds the lock.
func IsLockHeld(err error) bool {
	return errors.Is(err, domain.ErrLockHeld)
}

var _ domain.Archiver = (*OpportunityArchiver)(nil)
