package convert

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/dpoconv/internal/record"
	"github.com/MikeSquared-Agency/dpoconv/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func run(t *testing.T, m record.Mapping, input string) (string, Stats, error) {
	t.Helper()
	var out bytes.Buffer
	r := New(record.NewNormalizer(m), testLogger(), stream.NewWriter(&out))
	stats, err := r.Run(context.Background(), strings.NewReader(input))
	return out.String(), stats, err
}

func TestRun_MappingScenario(t *testing.T) {
	m := record.Mapping{UserField: "question", ChosenField: "answer_zh", RejectField: "answer_en"}
	out, stats, err := run(t, m, `{"question":"Hi","answer_zh":"你好","answer_en":"Hello"}`+"\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"messages":[{"role":"user","content":"Hi"},{"role":"assistant","content":"你好"}],"rejected_response":"Hello"}` + "\n"
	if out != want {
		t.Errorf("output = %s, want %s", out, want)
	}
	if stats.Read != 1 || stats.Written != 1 || stats.Skipped != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRun_FlatKeysScenario(t *testing.T) {
	out, _, err := run(t, record.Mapping{DefaultRejected: "<default>"}, `{"system":"be nice","user":"hi","assistant":"hello"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"messages":[{"role":"system","content":"be nice"},{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}],"rejected_response":"<default>"}` + "\n"
	if out != want {
		t.Errorf("output = %s, want %s", out, want)
	}
}

func TestRun_ConversationScenario(t *testing.T) {
	out, _, err := run(t, record.Mapping{DefaultRejected: "<default>"}, `{"conversations":[{"from":"human","value":"hi"},{"from":"gpt","value":"hello"}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"messages":[{"role":"user","content":"hi"}],"rejected_response":"<default>"}` + "\n"
	if out != want {
		t.Errorf("output = %s, want %s", out, want)
	}
}

func TestRun_ArraySkipsNonObjects(t *testing.T) {
	input := `[
  {"user":"a"},
  7,
  "text",
  {"unknown":"shape"},
  {"messages":[{"role":"user","content":"b"}],"rejected_response":"no"}
]`
	out, stats, err := run(t, record.Mapping{}, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 output lines, got %d: %q", len(lines), out)
	}
	if stats.Read != 5 || stats.Written != 2 || stats.Skipped != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Format != "array" {
		t.Errorf("expected array format, got %q", stats.Format)
	}
}

func TestRun_CanonicalInputIsUnchanged(t *testing.T) {
	in := `{"messages":[{"role":"user","content":"hi"}],"rejected_response":"no"}`
	out, _, err := run(t, record.Mapping{}, in+"\n"+in+"\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != in+"\n"+in+"\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRun_FramingErrorIsFatal(t *testing.T) {
	input := `{"user":"first"}` + "\n" + `{"user": broken` + "\n" + `{"user":"never"}` + "\n"
	out, stats, err := run(t, record.Mapping{}, input)

	if err == nil {
		t.Fatal("expected framing error")
	}
	if !IsFraming(err) {
		t.Errorf("expected IsFraming, got %v", err)
	}
	if stats.Written != 1 {
		t.Errorf("expected 1 record written before the failure, got %d", stats.Written)
	}
	if strings.Contains(out, "never") {
		t.Error("records after a framing error must not be written")
	}
}

func TestRun_ZeroOutput(t *testing.T) {
	out, stats, err := run(t, record.Mapping{UserField: "q", ChosenField: "a"}, `{"user":"hi"}`+"\n\n")
	if err != nil {
		t.Fatalf("zero output is not an error: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty output, got %q", out)
	}
	if stats.Read != 1 || stats.Written != 0 || stats.Skipped != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	_, stats, err := run(t, record.Mapping{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Read != 0 {
		t.Errorf("expected nothing read, got %d", stats.Read)
	}
}

type recordingSink struct {
	recs []record.Record
	fail error
}

func (s *recordingSink) Write(_ context.Context, rec record.Record) error {
	if s.fail != nil {
		return s.fail
	}
	s.recs = append(s.recs, rec)
	return nil
}

func TestRun_FansOutToAllSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	r := New(record.NewNormalizer(record.Mapping{}), testLogger(), a, b)

	_, err := r.Run(context.Background(), strings.NewReader(`{"user":"1"}`+"\n"+`{"user":"2"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.recs) != 2 || len(b.recs) != 2 {
		t.Errorf("expected both sinks to get 2 records, got %d and %d", len(a.recs), len(b.recs))
	}
	if a.recs[1].Messages[0].Content != "2" {
		t.Errorf("expected input order, got %+v", a.recs)
	}
}

func TestRun_SinkErrorStopsRun(t *testing.T) {
	boom := errors.New("disk full")
	r := New(record.NewNormalizer(record.Mapping{}), testLogger(), &recordingSink{fail: boom})

	stats, err := r.Run(context.Background(), strings.NewReader(`{"user":"1"}`+"\n"+`{"user":"2"}`))
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if IsFraming(err) {
		t.Error("sink errors are not framing errors")
	}
	if stats.Written != 0 {
		t.Errorf("expected nothing written, got %d", stats.Written)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(record.NewNormalizer(record.Mapping{}), testLogger())
	_, err := r.Run(ctx, strings.NewReader(`{"user":"1"}`))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
