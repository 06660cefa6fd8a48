package graphsdk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	err := newError(ErrCanceled, "dispatch", context.Canceled)
	require.ErrorIs(t, err, ErrCanceled)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTransport)
	require.Equal(t, "graphsdk: dispatch: canceled: context canceled", err.Error())

	bare := newError(ErrInvalidState, "", nil)
	require.Equal(t, "graphsdk: invalid state", bare.Error())
	require.ErrorIs(t, bare, ErrInvalidState)
}

func TestParseAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want *APIError
	}{
		{
			name: "graph envelope",
			body: `{"error":{"message":"Error validating access token","type":"OAuthException","code":190,"error_subcode":463}}`,
			want: &APIError{StatusCode: 400, Code: 190, Subcode: 463, Type: "OAuthException", Message: "Error validating access token"},
		},
		{
			name: "rest envelope with string code",
			body: `{"error_code":"102","error_msg":"Session key invalid or no longer valid","request_args":[]}`,
			want: &APIError{StatusCode: 400, Code: 102, Message: "Session key invalid or no longer valid"},
		},
		{
			name: "string error",
			body: `{"error":"invalid_request"}`,
			want: &APIError{StatusCode: 400, Message: "invalid_request"},
		},
		{name: "success object", body: `{"id":"4"}`},
		{name: "array", body: `[1,2]`},
		{name: "not json", body: `<html>`},
		{name: "null error", body: `{"error":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parseAPIError(400, []byte(tt.body)))
		})
	}
}

func TestAPIError_Message(t *testing.T) {
	t.Parallel()

	err := &APIError{StatusCode: 400, Type: "OAuthException", Code: 190, Subcode: 463, Message: "expired"}
	require.Equal(t, "HTTP 400 OAuthException (code 190, subcode 463): expired", err.Error())
	require.True(t, err.SessionInvalidated())

	require.Equal(t, "HTTP 503: Service Unavailable", statusError(503).Error())
	require.False(t, statusError(503).SessionInvalidated())

	var target *APIError
	wrapped := newError(ErrTransport, "response", err)
	require.True(t, errors.As(wrapped, &target))
	require.Same(t, err, target)
}
