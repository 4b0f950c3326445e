package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/MikeSquared-Agency/dpoconv/internal/convert"
	"github.com/MikeSquared-Agency/dpoconv/internal/record"
	"github.com/MikeSquared-Agency/dpoconv/internal/stream"
)

const maxConvertBody = 64 << 20

// convert handles POST /api/v1/convert. The body is JSONL or a JSON array.
func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	m := mappingFromQuery(s.opts.Mapping, r)

	var out bytes.Buffer
	runner := convert.New(record.NewNormalizer(m), s.logger, stream.NewWriter(&out))

	body := http.MaxBytesReader(w, r.Body, maxConvertBody)
	stats, err := runner.Run(r.Context(), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case convert.IsFraming(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("convert request failed", "error", err)
			writeError(w, http.StatusInternalServerError, "conversion failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Records-Read", strconv.Itoa(stats.Read))
	w.Header().Set("X-Records-Written", strconv.Itoa(stats.Written))
	w.WriteHeader(http.StatusOK)
	w.Write(out.Bytes())
}

func mappingFromQuery(base record.Mapping, r *http.Request) record.Mapping {
	q := r.URL.Query()
	override := func(dst *string, key string) {
		if q.Has(key) {
			*dst = q.Get(key)
		}
	}
	override(&base.UserField, "user_field")
	override(&base.ChosenField, "chosen_field")
	override(&base.RejectField, "reject_field")
	override(&base.SystemText, "system_text")
	override(&base.DefaultRejected, "default_rejected")
	return base
}
