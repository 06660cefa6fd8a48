package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aussiebroadwan/graphconnect/internal/filter"
)

// writeBody prints a response body, filtered and indented when it is JSON.
func writeBody(w io.Writer, body []byte, f *filter.Filter) error {
	if !json.Valid(body) {
		_, err := w.Write(body)
		if err == nil && len(body) > 0 && body[len(body)-1] != '\n' {
			_, err = io.WriteString(w, "\n")
		}
		return err
	}

	out, err := f.ApplyJSON(body)
	if err != nil {
		return err
	}
	return writeIndented(w, out)
}

func writeJSON(w io.Writer, v any, f *filter.Filter) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	out, err := f.ApplyJSON(raw)
	if err != nil {
		return err
	}
	return writeIndented(w, out)
}

func writeIndented(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("format output: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
