package solana

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"solana-rpcpool-go/internal/rpcpool"
)

// RPCExecutor is the generic call path the helpers translate onto.
type RPCExecutor interface {
	Request(ctx context.Context, method string, params []any, id int64) *rpcpool.Envelope
}

var _ RPCExecutor = (*rpcpool.Executor)(nil)

// Client 链上查询的类型化封装：只做参数翻译与结果解包，
// 重试与评分全部在 Executor 中完成；缺数据时返回零值，不报错。
type Client struct {
	exec   RPCExecutor
	nextID atomic.Int64
	logger *slog.Logger
}

func NewClient(exec RPCExecutor) *Client {
	return &Client{exec: exec, logger: slog.Default()}
}

// Call issues a raw JSON-RPC call through the executor.
func (c *Client) Call(ctx context.Context, method string, params ...any) *rpcpool.Envelope {
	return c.exec.Request(ctx, method, params, c.nextID.Add(1))
}

// CallWithID is Call with a caller-chosen request id, echoed in the envelope.
func (c *Client) CallWithID(ctx context.Context, id int64, method string, params []any) *rpcpool.Envelope {
	return c.exec.Request(ctx, method, params, id)
}

// GetBalance returns the balance in SOL, or 0.0 when the result is missing.
func (c *Client) GetBalance(ctx context.Context, address string) float64 {
	env := c.Call(ctx, "getBalance", address)
	var res contextual[uint64]
	if !c.decode(env, "getBalance", &res) || res.Value == nil {
		return 0.0
	}
	return float64(*res.Value) / LamportsPerSOL
}

// GetSignaturesForAddress returns up to limit recent signatures, newest first.
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, limit int) []SignatureInfo {
	return c.GetSignaturesBefore(ctx, address, limit, "")
}

// GetSignaturesBefore pages backwards from the before signature.
func (c *Client) GetSignaturesBefore(ctx context.Context, address string, limit int, before string) []SignatureInfo {
	opts := map[string]any{"limit": clampLimit(limit)}
	if before != "" {
		opts["before"] = before
	}
	env := c.Call(ctx, "getSignaturesForAddress", address, opts)

	var sigs []SignatureInfo
	if !c.decode(env, "getSignaturesForAddress", &sigs) || sigs == nil {
		return []SignatureInfo{}
	}
	return sigs
}

// GetTransaction returns nil when the transaction is unknown or unavailable.
func (c *Client) GetTransaction(ctx context.Context, signature string) *Transaction {
	env := c.Call(ctx, "getTransaction", signature, map[string]any{
		"encoding":                       "json",
		"maxSupportedTransactionVersion": 0,
	})
	var tx *Transaction
	if !c.decode(env, "getTransaction", &tx) {
		return nil
	}
	return tx
}

// GetTokenAccountsByOwner lists SPL token accounts held by owner.
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner string) []TokenAccount {
	env := c.Call(ctx, "getTokenAccountsByOwner", owner,
		map[string]any{"programId": TokenProgramID},
		map[string]any{"encoding": "jsonParsed"},
	)
	var res contextual[[]TokenAccount]
	if !c.decode(env, "getTokenAccountsByOwner", &res) || res.Value == nil || *res.Value == nil {
		return []TokenAccount{}
	}
	return *res.Value
}

// decode 解包 result；失败、null 或结构不符都返回 false
func (c *Client) decode(env *rpcpool.Envelope, method string, out any) bool {
	if env == nil || !env.HasResult() {
		return false
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		c.logger.Warn("rpc_unexpected_result_shape",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSignatureLimit
	case limit > MaxSignatureLimit:
		return MaxSignatureLimit
	default:
		return limit
	}
}
