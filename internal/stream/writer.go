package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/MikeSquared-Agency/dpoconv/internal/record"
)

// Writer emits canonical records as compact JSON Lines. Non-ASCII text and
// HTML-sensitive characters are written literally.
type Writer struct {
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc}
}

// Write encodes one record followed by a newline.
func (w *Writer) Write(_ context.Context, rec record.Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}
