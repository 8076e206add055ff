package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	tests := []struct {
		name string
		err  *E
		want string
	}{
		{
			name: "without cause",
			err:  New(NoData, "no data received"),
			want: "no_data: no data received",
		},
		{
			name: "with cause",
			err:  Wrap(BackendFailure, "request failed", stderrors.New("relation does not exist")),
			want: "backend_failure: request failed: relation does not exist",
		},
		{
			name: "formatted",
			err:  Newf(InvalidColumn, "column index %d out of range", 7),
			want: "invalid_column: column index 7 out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindMatching(t *testing.T) {
	cause := stderrors.New("boom")
	inner := Wrap(Transport, "stream broke", cause)
	outer := Wrap(BackendFailure, "request failed", inner)
	wrapped := fmt.Errorf("query: %w", outer)

	require.Equal(t, BackendFailure, KindOf(wrapped))
	require.True(t, IsKind(wrapped, BackendFailure))
	require.True(t, IsKind(wrapped, Transport))
	require.False(t, IsKind(wrapped, Closed))
	require.ErrorIs(t, wrapped, cause)

	require.Equal(t, Kind(""), KindOf(cause))
	require.False(t, IsKind(nil, NoData))
}
