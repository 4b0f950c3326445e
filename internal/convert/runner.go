package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/dpoconv/internal/record"
	"github.com/MikeSquared-Agency/dpoconv/internal/stream"
)

// NoRecordsMessage is the advisory printed when a run produced nothing.
const NoRecordsMessage = "No valid conversation records found to convert."

// Sink receives every accepted record, in input order.
type Sink interface {
	Write(ctx context.Context, rec record.Record) error
}

// Stats counts one run.
type Stats struct {
	Read     int           `json:"records_read"`
	Written  int           `json:"records_written"`
	Skipped  int           `json:"records_skipped"`
	Format   string        `json:"format"`
	Duration time.Duration `json:"-"`
}

// Runner drives a single synchronous pass: read, normalize, write, repeat.
type Runner struct {
	normalizer *record.Normalizer
	sinks      []Sink
	logger     *slog.Logger
}

// New creates a runner that writes accepted records to every sink.
func New(n *record.Normalizer, logger *slog.Logger, sinks ...Sink) *Runner {
	return &Runner{
		normalizer: n,
		sinks:      sinks,
		logger:     logger,
	}
}

// Run consumes src until it is exhausted. Unconvertible records are skipped;
// a framing error or a sink failure ends the run. Stats are valid in both cases.
func (r *Runner) Run(ctx context.Context, src io.Reader) (Stats, error) {
	start := time.Now()
	reader := stream.NewReader(src)

	var stats Stats
	finish := func() Stats {
		stats.Format = reader.Format().String()
		stats.Duration = time.Since(start)
		return stats
	}

	r.logger.Debug("conversion started", "mapping_mode", r.normalizer.Mapping().Active())

	for {
		select {
		case <-ctx.Done():
			return finish(), ctx.Err()
		default:
		}

		raw, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.Error("input framing failed",
				"records_read", stats.Read,
				"error", err,
			)
			return finish(), err
		}
		stats.Read++

		rec, ok := r.normalizer.Normalize(raw)
		if !ok {
			stats.Skipped++
			continue
		}

		for _, s := range r.sinks {
			if err := s.Write(ctx, rec); err != nil {
				return finish(), fmt.Errorf("write record %d: %w", stats.Read, err)
			}
		}
		stats.Written++
	}

	stats = finish()
	r.logger.Info("conversion complete",
		"format", stats.Format,
		"records_read", stats.Read,
		"records_written", stats.Written,
		"records_skipped", stats.Skipped,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	if stats.Written == 0 {
		r.logger.Warn("no records converted", "records_read", stats.Read)
	}
	return stats, nil
}

// IsFraming reports whether err came from unreadable input framing.
func IsFraming(err error) bool {
	return errors.Is(err, stream.ErrFraming)
}
