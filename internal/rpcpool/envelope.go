package rpcpool

import (
	"encoding/json"
	"errors"
)

const jsonRPCVersion = "2.0"

// request is the JSON-RPC 2.0 request body.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// response is the subset of a JSON-RPC 2.0 response the executor inspects.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// Envelope 统一的返回结构：无论哪个端点响应、成功或失败，形状一致
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *EnvelopeError  `json:"error,omitempty"`
	Meta    Meta            `json:"_meta"`

	// Err keeps the typed failure for Go callers.
	Err error `json:"-"`
}

type EnvelopeError struct {
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind,omitempty"`
}

// Meta describes how the envelope was produced. A success carries the
// endpoint fields, a failure carries Failed and Attempts.
type Meta struct {
	Endpoint     string  `json:"endpoint"`
	LatencyMs    float64 `json:"latency_ms"`
	Attempt      int     `json:"attempt"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	Failed       bool    `json:"failed"`
	Attempts     int     `json:"attempts"`
}

type successMeta struct {
	Endpoint     string  `json:"endpoint"`
	LatencyMs    float64 `json:"latency_ms"`
	Attempt      int     `json:"attempt"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

type failureMeta struct {
	Failed   bool `json:"failed"`
	Attempts int  `json:"attempts"`
}

// MarshalJSON always writes every key of the outcome's shape, zero values included.
func (m Meta) MarshalJSON() ([]byte, error) {
	if m.Failed {
		return json.Marshal(failureMeta{Failed: true, Attempts: m.Attempts})
	}
	return json.Marshal(successMeta{
		Endpoint:     m.Endpoint,
		LatencyMs:    m.LatencyMs,
		Attempt:      m.Attempt,
		AvgLatencyMs: m.AvgLatencyMs,
	})
}

// OK reports whether the envelope carries a result.
func (e *Envelope) OK() bool {
	return !e.Meta.Failed
}

// HasResult reports whether the call succeeded with a non-null result.
func (e *Envelope) HasResult() bool {
	return e.OK() && len(e.Result) > 0 && string(e.Result) != "null"
}

func successEnvelope(id int64, result json.RawMessage, meta Meta) *Envelope {
	return &Envelope{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Result:  result,
		Meta:    meta,
	}
}

func failureEnvelope(id int64, attempts int, kind ErrorKind, err error) *Envelope {
	msg := "no attempts made"
	var ex *ExhaustedError
	switch {
	case errors.As(err, &ex) && ex.Last != nil:
		msg = ex.Last.Error()
	case err != nil:
		msg = err.Error()
	}
	return &Envelope{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Result:  nil,
		Error:   &EnvelopeError{Message: msg, Kind: kind},
		Meta:    Meta{Failed: true, Attempts: attempts},
		Err:     err,
	}
}
