package filter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyExpressionIsIdentity(t *testing.T) {
	f, err := Compile("  ")
	require.NoError(t, err)

	in := map[string]any{"id": "1"}
	out, err := f.Apply(in)
	require.NoError(t, err)
	require.Equal(t, in, out)

	raw := []byte(`{"id":"1"}`)
	got, err := f.ApplyJSON(raw)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		expr string
		in   string
		want string
	}{
		{"field", ".name", `{"id":"4","name":"Zuck"}`, `"Zuck"`},
		{"multiple results", ".data[].id", `{"data":[{"id":"1"},{"id":"2"}]}`, `["1","2"]`},
		{"data fallback", ".[] | .id", `{"data":[{"id":"1"},{"id":"2"}]}`, `["1","2"]`},
		{"shell escaped bang", `.data | map(select(.id \!= "1")) | length`, `{"data":[{"id":"1"},{"id":"2"}]}`, `1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expr)
			require.NoError(t, err)
			got, err := f.ApplyJSON([]byte(tt.in))
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestCompileError(t *testing.T) {
	_, err := Compile(".[")
	require.ErrorContains(t, err, "invalid filter expression")
}

func TestRuntimeError(t *testing.T) {
	f, err := Compile(".a.b")
	require.NoError(t, err)
	_, err = f.ApplyJSON([]byte(`{"a":"str"}`))
	require.ErrorContains(t, err, "filter error")
}

func TestInvalidJSON(t *testing.T) {
	f, err := Compile(".")
	require.NoError(t, err)
	_, err = f.ApplyJSON([]byte(`{`))
	require.ErrorContains(t, err, "invalid JSON")
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	out, err := f.Apply(42)
	require.NoError(t, err)
	require.Equal(t, 42, out)
}
