package storage

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archiver/v4"
)

// decompress sniffs the stream content and wraps it in a decompressor. The
// file name is not consulted: archiver matches extensions anywhere in a path.
// Plain streams are returned unchanged apart from the buffering needed for
// sniffing.
func decompress(rc io.ReadCloser) (io.ReadCloser, error) {
	format, stream, err := archiver.Identify("", rc)
	if errors.Is(err, archiver.ErrNoMatch) {
		return readCloser{Reader: stream, closers: []io.Closer{rc}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identify input format: %w", err)
	}

	dc, ok := format.(archiver.Decompressor)
	if !ok {
		return nil, fmt.Errorf("unsupported input format %T: archives are not accepted", format)
	}
	r, err := dc.OpenReader(stream)
	if err != nil {
		return nil, fmt.Errorf("open decompressor: %w", err)
	}
	return readCloser{Reader: r, closers: []io.Closer{r, rc}}, nil
}

// compress wraps w according to the output name's suffix.
func compress(name string, w io.WriteCloser) (io.WriteCloser, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return writeCloser{Writer: gzip.NewWriter(w), base: w}, nil
	case strings.HasSuffix(lower, ".zst"):
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("open zstd encoder: %w", err)
		}
		return writeCloser{Writer: enc, base: w}, nil
	default:
		return w, nil
	}
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r readCloser) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// writeCloser closes the compressor before the underlying writer.
type writeCloser struct {
	io.Writer
	base io.Closer
}

func (w writeCloser) Close() error {
	var errs []error
	if c, ok := w.Writer.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("flush compressed output: %w", err))
		}
	}
	if err := w.base.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
