// Package filter applies jq expressions to Graph API responses.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// Filter is a compiled jq expression. The zero value passes data through.
type Filter struct {
	expr string
	code *gojq.Code
}

// Normalize undoes shell escaping of "!" (zsh history expansion turns
// != into \!=, even inside single quotes).
func Normalize(expr string) string {
	return strings.ReplaceAll(strings.TrimSpace(expr), `\!`, `!`)
}

// Compile parses and compiles expr. An empty expression yields the
// identity filter.
func Compile(expr string) (*Filter, error) {
	expr = Normalize(expr)
	if expr == "" {
		return &Filter{}, nil
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return &Filter{expr: expr, code: code}, nil
}

// Apply runs the filter over data. A single result is returned as is,
// several come back as a slice.
func (f *Filter) Apply(data any) (any, error) {
	if f == nil || f.code == nil {
		return data, nil
	}

	results, err := f.run(data)
	if err != nil {
		// Graph list endpoints wrap items in {"data": [...]}; let ".[]"
		// style expressions address the list directly.
		if items, ok := dataFallback(data, f.expr); ok {
			if again, againErr := f.run(items); againErr == nil {
				return collapse(again), nil
			}
		}
		return nil, err
	}
	return collapse(results), nil
}

// ApplyJSON decodes raw, applies the filter and re-encodes the result.
func (f *Filter) ApplyJSON(raw []byte) ([]byte, error) {
	if f == nil || f.code == nil {
		return raw, nil
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	out, err := f.Apply(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (f *Filter) run(data any) ([]any, error) {
	iter := f.code.Run(data)

	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("filter error: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}

func collapse(results []any) any {
	if len(results) == 1 {
		return results[0]
	}
	return results
}

func dataFallback(data any, expr string) (any, bool) {
	if !strings.HasPrefix(expr, ".[]") && !strings.HasPrefix(expr, "[.[]") {
		return nil, false
	}
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}
	items, ok := m["data"].([]any)
	if !ok {
		return nil, false
	}
	return items, true
}
