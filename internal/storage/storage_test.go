package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `{"messages":[{"role":"user","content":"你好"}],"rejected_response":"no"}` + "\n"

func newTestOpener() *Opener {
	return NewOpener(S3Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func roundTrip(t *testing.T, path string) string {
	t.Helper()
	ctx := context.Background()
	o := newTestOpener()

	w, err := o.CreateOutput(ctx, path)
	if err != nil {
		t.Fatalf("CreateOutput: %v", err)
	}
	if _, err := io.WriteString(w, strings.Repeat(sample, 50)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close output: %v", err)
	}

	r, err := o.OpenInput(ctx, path)
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	return string(data)
}

func TestRoundTrip_PlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	if got := roundTrip(t, path); got != strings.Repeat(sample, 50) {
		t.Errorf("unexpected content (%d bytes)", len(got))
	}
}

func TestRoundTrip_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl.gz")
	if got := roundTrip(t, path); got != strings.Repeat(sample, 50) {
		t.Errorf("unexpected content (%d bytes)", len(got))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte{0x1f, 0x8b}) {
		t.Error("expected gzip magic bytes on disk")
	}
}

func TestRoundTrip_Zstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl.zst")
	if got := roundTrip(t, path); got != strings.Repeat(sample, 50) {
		t.Errorf("unexpected content (%d bytes)", len(got))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte{0x28, 0xb5, 0x2f, 0xfd}) {
		t.Error("expected zstd magic bytes on disk")
	}
}

func TestOpenInput_PlainFileWithArchiveLikeName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"data.gz.backup.jsonl", "export.zip.jsonl", "logs.tar.xz.json"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
			t.Fatal(err)
		}

		r, err := newTestOpener().OpenInput(context.Background(), path)
		if err != nil {
			t.Errorf("%s: OpenInput: %v", name, err)
			continue
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Errorf("%s: read: %v", name, err)
			continue
		}
		if string(data) != sample {
			t.Errorf("%s: unexpected content %q", name, data)
		}
	}
}

func TestOpenInput_GzipContentWithoutSuffix(t *testing.T) {
	dir := t.TempDir()
	compressed := filepath.Join(dir, "out.jsonl.gz")
	w, err := newTestOpener().CreateOutput(context.Background(), compressed)
	if err != nil {
		t.Fatalf("CreateOutput: %v", err)
	}
	io.WriteString(w, sample)
	if err := w.Close(); err != nil {
		t.Fatalf("close output: %v", err)
	}

	renamed := filepath.Join(dir, "upload.jsonl")
	if err := os.Rename(compressed, renamed); err != nil {
		t.Fatal(err)
	}

	r, err := newTestOpener().OpenInput(context.Background(), renamed)
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != sample {
		t.Errorf("expected content to be sniffed and decompressed, got %q", data)
	}
}

func TestCreateOutput_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "out.jsonl")

	w, err := newTestOpener().CreateOutput(context.Background(), path)
	if err != nil {
		t.Fatalf("CreateOutput: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected output file: %v", err)
	}
}

func TestStdio(t *testing.T) {
	o := newTestOpener()
	var out bytes.Buffer
	o.stdin = strings.NewReader(sample)
	o.stdout = &out

	r, err := o.OpenInput(context.Background(), Stdio)
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != sample {
		t.Errorf("stdin content = %q", data)
	}

	w, err := o.CreateOutput(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateOutput: %v", err)
	}
	io.WriteString(w, "x\n")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if out.String() != "x\n" {
		t.Errorf("stdout content = %q", out.String())
	}
}

func TestOpenInput_NotFound(t *testing.T) {
	_, err := newTestOpener().OpenInput(context.Background(), "/nonexistent/input.jsonl")
	if err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://datasets/dpo/train.jsonl.gz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "datasets" || key != "dpo/train.jsonl.gz" {
		t.Errorf("got bucket %q key %q", bucket, key)
	}

	for _, bad := range []string{"s3://", "s3://bucket", "s3://bucket/", "s3:///key", "/local/path"} {
		if _, _, err := parseS3URL(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
