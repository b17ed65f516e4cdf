package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"fleet-dashboard/internal/models"
	"fleet-dashboard/internal/observability"
)

// TokenSource hands out the bearer token for a call and recovers from
// transient auth failures with a fresh login.
type TokenSource interface {
	Token() string
	Relogin(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a token the caller does not own
// (e.g. one handed in by the report scheduler). It cannot relogin.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

func (t StaticToken) Relogin(context.Context) (string, error) {
	return "", fmt.Errorf("%w: static token", ErrReloginFailed)
}

type rpcRequest struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    *struct {
			Message string `json:"message"`
		} `json:"data"`
	} `json:"error"`
}

// managerParams rewrites the params of manager methods whose backend
// signature differs from what callers send.
var managerParams = map[string]func(map[string]any) map[string]any{
	"session.select_customer": func(p map[string]any) map[string]any {
		return map[string]any{"customer_id": p["id"]}
	},
}

// Call invokes method on the role's JSON-RPC namespace and decodes the
// result into out (which may be nil). Transient auth failures get one
// ts.Relogin and a single retry.
func (c *Client) Call(ctx context.Context, role models.UserRole, ts TokenSource, method string, params, out any) error {
	token := ts.Token()
	if token == "" {
		return ErrNoToken
	}

	if role == models.RoleManager {
		if rewrite, ok := managerParams[method]; ok {
			if p, ok := params.(map[string]any); ok {
				params = rewrite(p)
			}
		}
	}

	err := c.call(ctx, role, token, method, params, out)
	var rpcErr *RPCError
	if err == nil || !errors.As(err, &rpcErr) || !isTransientAuth(rpcErr.Message) {
		return err
	}

	c.logger.Info("transient backend auth error, logging in again",
		zap.String("method", method),
		zap.String("message", rpcErr.Message))

	fresh, rerr := ts.Relogin(ctx)
	if rerr != nil {
		return fmt.Errorf("%w: %v", ErrReloginFailed, rerr)
	}
	if fresh == "" {
		return ErrReloginFailed
	}
	return c.call(ctx, role, fresh, method, params, out)
}

func (c *Client) call(ctx context.Context, role models.UserRole, token, method string, params, out any) error {
	ns := role.Namespace()
	req := rpcRequest{ID: "1", JSONRPC: "2.0", Method: method, Params: params}

	status, raw, err := c.post(ctx, c.endpoint(role, ""), token, req)
	if err != nil {
		observability.RecordRPC(ctx, ns, "error")
		return err
	}

	if status == http.StatusServiceUnavailable {
		c.maintenance.Store(true)
		observability.RecordRPC(ctx, ns, "maintenance")
		return ErrMaintenance
	}
	if status < 200 || status >= 300 {
		observability.RecordRPC(ctx, ns, "error")
		return &RPCError{Status: status, Method: method, Message: errorMessage(raw)}
	}
	c.maintenance.Store(false)

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		observability.RecordRPC(ctx, ns, "error")
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if resp.Error != nil {
		observability.RecordRPC(ctx, ns, "error")
		msg := resp.Error.Message
		if resp.Error.Data != nil && resp.Error.Data.Message != "" {
			msg = resp.Error.Data.Message
		}
		return &RPCError{Status: status, Method: method, Message: msg}
	}

	observability.RecordRPC(ctx, ns, "success")
	if err := decodeResult(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// decodeResult unmarshals raw into out. Some methods return their payload
// as a JSON encoded string; those are decoded twice.
func decodeResult(raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return json.Unmarshal(trimmed, out)
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return err
	}
	if p, ok := out.(*string); ok {
		*p = s
		return nil
	}
	if p, ok := out.(*json.RawMessage); ok {
		*p = json.RawMessage(s)
		if !json.Valid(*p) {
			*p = append(json.RawMessage(nil), trimmed...)
		}
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}
