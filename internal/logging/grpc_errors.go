// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCErrorType represents the category of a bridge server error
type GRPCErrorType int

const (
	GRPCErrorUnknown GRPCErrorType = iota
	GRPCErrorNetwork
	GRPCErrorAuth
	GRPCErrorTimeout
	GRPCErrorInternal
	GRPCErrorUnavailable
)

// ClassifyGRPCError categorizes err by its gRPC status code, falling back to
// the message when the status was flattened into text.
func ClassifyGRPCError(err error) GRPCErrorType {
	if err == nil {
		return GRPCErrorUnknown
	}
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		switch se.GRPCStatus().Code() {
		case codes.Unavailable:
			return GRPCErrorUnavailable
		case codes.DeadlineExceeded:
			return GRPCErrorTimeout
		case codes.Unauthenticated, codes.PermissionDenied:
			return GRPCErrorAuth
		case codes.Internal:
			return GRPCErrorInternal
		}
	}
	return ParseGRPCError(err.Error())
}

// ParseGRPCError categorizes a gRPC error message
func ParseGRPCError(errMsg string) GRPCErrorType {
	lower := strings.ToLower(errMsg)

	if strings.Contains(lower, "rst_stream") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") {
		return GRPCErrorNetwork
	}
	if strings.Contains(lower, "internal") {
		return GRPCErrorInternal
	}
	if strings.Contains(lower, "unavailable") {
		return GRPCErrorUnavailable
	}
	if strings.Contains(lower, "deadline") || strings.Contains(lower, "timeout") {
		return GRPCErrorTimeout
	}
	if strings.Contains(lower, "unauthenticated") || strings.Contains(lower, "permissiondenied") ||
		strings.Contains(lower, "unauthorized") {
		return GRPCErrorAuth
	}
	return GRPCErrorUnknown
}

// FormatStreamError formats a bridge server error in a user-friendly way
func FormatStreamError(err error) string {
	errType := ClassifyGRPCError(err)

	var builder strings.Builder
	builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Bridge Server Error"))
	builder.WriteString("\n\n")

	switch errType {
	case GRPCErrorNetwork:
		builder.WriteString("The connection to the bridge server was interrupted.\n")
		builder.WriteString("Check that `cursorbridge serve` is running and reachable.\n")
	case GRPCErrorInternal:
		builder.WriteString("The bridge server failed while processing the request.\n")
		builder.WriteString("Its log has the details.\n")
	case GRPCErrorUnavailable:
		builder.WriteString("The bridge server is unavailable, or it could not open its backend.\n")
	case GRPCErrorTimeout:
		builder.WriteString("The bridge server did not answer in time.\n")
		builder.WriteString("Raise --timeout or timeouts.query if the statement is slow.\n")
	case GRPCErrorAuth:
		builder.WriteString("The bridge server rejected the connection.\n")
		builder.WriteString("Check whether it expects TLS (grpcs://).\n")
	default:
		builder.WriteString("The request to the bridge server failed.\n")
	}

	if err != nil {
		builder.WriteString("\n")
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(err.Error())))
	}
	return builder.String()
}

// PresentStreamError displays a formatted bridge server error
func PresentStreamError(err error) {
	fmt.Println()
	fmt.Println(FormatStreamError(err))
	fmt.Println()
}
