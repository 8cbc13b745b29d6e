package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies why an attempt (or a whole request) failed.
type ErrorKind string

const (
	KindTransport        ErrorKind = "transport_error"
	KindTimeout          ErrorKind = "timeout_error"
	KindRateLimited      ErrorKind = "rate_limited"
	KindHTTPStatus       ErrorKind = "http_status_error"
	KindRPCLogical       ErrorKind = "rpc_logical_error"
	KindExhaustedRetries ErrorKind = "exhausted_retries"
	KindCanceled         ErrorKind = "canceled"
)

// AttemptError 单次尝试失败的详细信息
type AttemptError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int // HTTP status, 0 when no response
	Code       int // JSON-RPC error code for KindRPCLogical
	Err        error
}

func (e *AttemptError) Error() string {
	switch e.Kind {
	case KindRateLimited, KindHTTPStatus:
		return fmt.Sprintf("%s: HTTP %d: %v", e.Kind, e.StatusCode, e.Err)
	case KindRPCLogical:
		return fmt.Sprintf("%s: code %d: %v", e.Kind, e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// ExhaustedError is the final error once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// KindOf reports the ErrorKind carried by err, or "" if none.
func KindOf(err error) ErrorKind {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return ""
}

// rpcError is the JSON-RPC 2.0 error member.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return e.Message
}

// classifyTransport 区分超时与其他传输层错误
func classifyTransport(endpoint string, err error) *AttemptError {
	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &AttemptError{Kind: kind, Endpoint: endpoint, Err: err}
}
