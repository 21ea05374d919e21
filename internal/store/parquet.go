package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parquet-go/parquet-go"

	"brokerage/internal/domain"
	"brokerage/internal/util"
)

const (
	defaultBatchSize     = 256
	defaultFlushInterval = time.Second
)

// ParquetStore journals executed fills to Parquet files on disk. RecordFill
// only buffers; buffered fills are written by Flush, one part file per UTC
// trading date per flush:
//
//	<DataDir>/fills/<YYYY-MM-DD>/part-<unix nanos>-<seq>.parquet
//
// Run flushes periodically and whenever BatchSize fills are pending.
type ParquetStore struct {
	DataDir       string
	BatchSize     int
	FlushInterval time.Duration
	Logger        *slog.Logger

	mu      sync.Mutex // guards pending
	pending []FillRecord
	kick    chan struct{}

	flushMu sync.Mutex // serializes part writes against readers
	seq     atomic.Uint64
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{
		DataDir:       dataDir,
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
		Logger:        util.Discard(),
		kick:          make(chan struct{}, 1),
	}
}

// FillRecord is the Parquet schema for an executed fill.
type FillRecord struct {
	OrderID    uint64 `parquet:"order_id"`
	AccountID  string `parquet:"account_id"`
	Ticker     string `parquet:"ticker"`
	Side       string `parquet:"side"`
	Shares     int64  `parquet:"shares"`
	Price      int64  `parquet:"price"`
	ExecutedAt int64  `parquet:"executed_at,timestamp(millisecond)"` // Unix ms
}

// RecordFill buffers f for the next flush. It never touches the disk.
func (s *ParquetStore) RecordFill(_ context.Context, f domain.Fill) error {
	s.mu.Lock()
	s.pending = append(s.pending, toFillRecord(f))
	full := s.BatchSize > 0 && len(s.pending) >= s.BatchSize
	s.mu.Unlock()

	if full {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of buffered fills not yet on disk.
func (s *ParquetStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run flushes buffered fills every FlushInterval and whenever a batch fills
// up, until ctx is done. A final flush runs on the way out.
func (s *ParquetStore) Run(ctx context.Context) {
	interval := s.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(context.Background()); err != nil {
				s.Logger.Error("final fill flush failed", "pending", s.Pending(), "error", err)
			}
			return
		case <-ticker.C:
		case <-s.kick:
		}
		if err := s.Flush(ctx); err != nil {
			s.Logger.Warn("fill flush failed, will retry", "pending", s.Pending(), "error", err)
		}
	}
}

// Flush writes every buffered fill to disk. Fills that could not be written
// stay buffered for the next attempt.
func (s *ParquetStore) Flush(_ context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	failed, err := s.writeParts(batch)
	if len(failed) > 0 {
		s.mu.Lock()
		s.pending = append(failed, s.pending...)
		s.mu.Unlock()
	}
	if err == nil {
		s.Logger.Debug("flushed fills", "count", len(batch))
	}
	return err
}

// Close flushes any buffered fills.
func (s *ParquetStore) Close() error {
	return s.Flush(context.Background())
}

// WriteFills writes fills straight to disk, one part file per date. A fill
// already journaled under the same order id is superseded on read.
func (s *ParquetStore) WriteFills(_ context.Context, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	records := make([]FillRecord, len(fills))
	for i, f := range fills {
		records[i] = toFillRecord(f)
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	_, err := s.writeParts(records)
	return err
}

// writeParts writes records grouped by date and returns those whose part
// could not be written. Caller holds flushMu.
func (s *ParquetStore) writeParts(records []FillRecord) ([]FillRecord, error) {
	groups := make(map[string][]FillRecord)
	for _, r := range records {
		date := time.UnixMilli(r.ExecutedAt).UTC().Format("2006-01-02")
		groups[date] = append(groups[date], r)
	}

	var failed []FillRecord
	var errs []error
	for date, group := range groups {
		path := filepath.Join(s.DataDir, "fills", date, s.partName())
		if err := writeParquetFile(path, group); err != nil {
			failed = append(failed, group...)
			errs = append(errs, fmt.Errorf("writing fills for %s: %w", date, err))
		}
	}
	return failed, errors.Join(errs...)
}

// partName orders lexically by write time.
func (s *ParquetStore) partName() string {
	return fmt.Sprintf("part-%019d-%06d.parquet", time.Now().UnixNano(), s.seq.Add(1))
}

// ReadFills returns the fills executed within [start, end], oldest first,
// including buffered fills that have not been flushed yet.
func (s *ParquetStore) ReadFills(_ context.Context, start, end time.Time) ([]domain.Fill, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	buffered := make(map[string][]FillRecord)
	for _, r := range s.pending {
		date := time.UnixMilli(r.ExecutedAt).UTC().Format("2006-01-02")
		buffered[date] = append(buffered[date], r)
	}
	s.mu.Unlock()

	var fills []domain.Fill
	first := start.UTC().Truncate(24 * time.Hour)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		parts, err := filepath.Glob(filepath.Join(s.dayDir(d), "part-*.parquet"))
		if err != nil {
			return nil, err
		}
		sort.Strings(parts)

		var day []FillRecord
		for _, part := range parts {
			records, err := readParquetFile[FillRecord](part)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("reading %s: %w", part, err)
			}
			day = mergeFillRecords(day, records)
		}
		day = mergeFillRecords(day, buffered[d.Format("2006-01-02")])

		for _, r := range day {
			ts := time.UnixMilli(r.ExecutedAt)
			if !ts.Before(start) && !ts.After(end) {
				fills = append(fills, r.fill())
			}
		}
	}
	return fills, nil
}

// dayDir returns the directory holding a date's part files.
// Layout: <dataDir>/fills/<YYYY-MM-DD>
func (s *ParquetStore) dayDir(t time.Time) string {
	return filepath.Join(s.DataDir, "fills", t.UTC().Format("2006-01-02"))
}

func toFillRecord(f domain.Fill) FillRecord {
	return FillRecord{
		OrderID:    f.OrderID,
		AccountID:  f.AccountID,
		Ticker:     f.Ticker,
		Side:       string(f.Side),
		Shares:     f.Shares,
		Price:      f.Price,
		ExecutedAt: f.ExecutedAt.UnixMilli(),
	}
}

func (r FillRecord) fill() domain.Fill {
	return domain.Fill{
		OrderID:    r.OrderID,
		AccountID:  r.AccountID,
		Ticker:     r.Ticker,
		Side:       domain.Side(r.Side),
		Shares:     r.Shares,
		Price:      r.Price,
		ExecutedAt: time.UnixMilli(r.ExecutedAt),
	}
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeFillRecords deduplicates fill records by order id, preferring new
// records over existing ones. Results are sorted by execution time.
func mergeFillRecords(existing, incoming []FillRecord) []FillRecord {
	seen := make(map[uint64]FillRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.OrderID] = r
	}
	for _, r := range incoming {
		seen[r.OrderID] = r
	}

	merged := make([]FillRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].ExecutedAt != merged[j].ExecutedAt {
			return merged[i].ExecutedAt < merged[j].ExecutedAt
		}
		return merged[i].OrderID < merged[j].OrderID
	})
	return merged
}
