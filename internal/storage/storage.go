package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Stdio is the path that selects standard input or standard output.
const Stdio = "-"

// S3Config holds optional object-storage settings. Empty values fall back to
// the AWS SDK defaults.
type S3Config struct {
	Endpoint string
	Region   string
}

// Opener resolves input and output locations: "-" for stdio, s3://bucket/key
// for object storage, anything else for the local filesystem.
type Opener struct {
	s3cfg  S3Config
	client *s3.Client
	logger *slog.Logger

	stdin  io.Reader
	stdout io.Writer
}

func NewOpener(cfg S3Config, logger *slog.Logger) *Opener {
	return &Opener{
		s3cfg:  cfg,
		logger: logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
}

// OpenInput opens path for reading and transparently decompresses it.
func (o *Opener) OpenInput(ctx context.Context, path string) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch {
	case path == "" || path == Stdio:
		rc = io.NopCloser(o.stdin)
	case isS3(path):
		rc, err = o.openS3(ctx, path)
	default:
		rc, err = os.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	dec, err := decompress(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return dec, nil
}

// CreateOutput opens path for writing. Local parent directories are created,
// and a .gz or .zst suffix selects compression. The returned writer must be
// closed to flush compressed or remote output.
func (o *Opener) CreateOutput(ctx context.Context, path string) (io.WriteCloser, error) {
	var (
		wc  io.WriteCloser
		err error
	)
	switch {
	case path == "" || path == Stdio:
		wc = nopWriteCloser{o.stdout}
	case isS3(path):
		wc, err = o.createS3(ctx, path)
	default:
		wc, err = createFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}

	cw, err := compress(path, wc)
	if err != nil {
		wc.Close()
		return nil, err
	}
	return cw, nil
}

func createFile(path string) (*os.File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return os.Create(abs)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
