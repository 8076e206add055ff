// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package neterrors explains failures to reach a database or bridge server.
package neterrors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pterm/pterm"

	"cursorbridge/cli/internal/logging"
)

// Category is the kind of connection failure.
type Category int

const (
	Generic Category = iota
	Timeout
	DNS
	ConnectionRefused
	TLS
	AuthFailed
)

// Classify detects common connection failures.
func Classify(err error) Category {
	switch {
	case err == nil:
		return Generic
	case isAuthError(err):
		return AuthFailed
	case isTimeoutError(err):
		return Timeout
	case isDNSError(err):
		return DNS
	case isConnectionRefusedError(err):
		return ConnectionRefused
	case isTLSError(err):
		return TLS
	}
	return Generic
}

// FormatNetworkError prints a troubleshooting message for err while doing
// action against host and returns err wrapped for logging.
func FormatNetworkError(err error, action, host string) error {
	if err == nil {
		return nil
	}
	pterm.Println(Describe(err, action, host))
	return fmt.Errorf("connection error: %w", err)
}

// Describe returns the troubleshooting message FormatNetworkError prints.
func Describe(err error, action, host string) string {
	if host == "" {
		host = "the server"
	}
	var b strings.Builder
	switch Classify(err) {
	case Timeout:
		fmt.Fprintf(&b, "⏱️  Connection timeout while %s\n\n", action)
		fmt.Fprintf(&b, "%s took too long to respond. This could mean:\n", host)
		b.WriteString("  • The host is unreachable from this network\n")
		b.WriteString("  • The server is under heavy load\n")
		b.WriteString("  • A firewall drops the connection\n")
	case DNS:
		fmt.Fprintf(&b, "🌐 Cannot resolve %s while %s\n\n", host, action)
		b.WriteString("Check the host name in the target and your DNS settings.\n")
	case ConnectionRefused:
		fmt.Fprintf(&b, "🚫 Connection refused while %s\n\n", action)
		fmt.Fprintf(&b, "Nothing is listening at %s. Check the port and that the server is running.\n", host)
	case TLS:
		fmt.Fprintf(&b, "🔒 Secure connection failed while %s\n\n", action)
		b.WriteString("Try:\n")
		b.WriteString("  • sslmode=disable for a local PostgreSQL without TLS\n")
		b.WriteString("  • grpc:// instead of grpcs:// for a plaintext bridge server\n")
		b.WriteString("  • Checking your system date and time\n")
	case AuthFailed:
		fmt.Fprintf(&b, "🔑 Authentication failed while %s\n\n", action)
		b.WriteString("Check the user name and password, then run: cursorbridge connect\n")
	default:
		fmt.Fprintf(&b, "❌ Cannot connect to %s while %s\n", host, action)
	}

	// Show abbreviated error details for debugging
	details := logging.Mask(err.Error())
	if len(details) > 160 {
		details = details[:160] + "..."
	}
	b.WriteString("\n")
	b.WriteString(pterm.Gray("Technical details: " + details))
	return b.String()
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isTLSError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "ssl") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

// isAuthError matches PostgreSQL invalid_password and invalid_authorization_specification.
func isAuthError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "28P01" || pgErr.Code == "28000"
	}
	return strings.Contains(strings.ToLower(err.Error()), "password authentication failed")
}
