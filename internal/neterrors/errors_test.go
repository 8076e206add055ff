package neterrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), Timeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "db.invalid"}, DNS},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ConnectionRefused},
		{"tls", errors.New("tls: failed to verify certificate"), TLS},
		{"pg auth", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, AuthFailed},
		{"other", errors.New("boom"), Generic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestDescribeMasksDetails(t *testing.T) {
	out := Describe(errors.New("dial postgres://u:secret@db:5432/x: connection refused"), "verifying connection", "db:5432")
	assert.Contains(t, out, "Connection refused")
	assert.Contains(t, out, "db:5432")
	assert.NotContains(t, out, "secret")
}
