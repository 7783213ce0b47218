// Package ledger is the adapter for the ICRC-1 ckBTC ledger canister,
// the on-chain hop between the exchange balance and the controlling
// wallet. All amounts are satoshis.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"odinsweep/internal/session"
)

// FeeSats is the ledger's fixed transfer fee. It is a protocol constant,
// not queried at runtime.
const FeeSats int64 = 10

type Client struct {
	base     string
	canister string
	rest     *resty.Client
}

func NewClient(base, canisterID string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second) // default fallback
	}
	return &Client{base: base, canister: canisterID, rest: r}
}

// TransferError is a failure the ledger reported through the Err variant
// of its transfer result.
type TransferError struct {
	Message string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("ledger transfer rejected: %s", e.Message)
}

type queryEnvelope struct {
	Method string      `json:"method"`
	Args   interface{} `json:"args"`
}

// BalanceOf returns the sat balance of an account. icrc1_balance_of is a
// query call and needs no authentication.
func (c *Client) BalanceOf(ctx context.Context, owner string) (int64, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(queryEnvelope{
			Method: "icrc1_balance_of",
			Args:   map[string]string{"owner": owner},
		}).
		SetResult(&out).
		Post(c.queryURL())
	if err != nil {
		return 0, fmt.Errorf("icrc1_balance_of request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("icrc1_balance_of: gateway status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Balance, nil
}

type transferArgs struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type transferResult struct {
	Ok  *int64          `json:"Ok"`
	Err json.RawMessage `json:"Err"`
}

// Transfer moves amountSats from the session's account to the given
// principal and returns the block index on success.
func (c *Client) Transfer(ctx context.Context, sess *session.Session, to string, amountSats int64) (int64, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+sess.Token).
		SetBody(queryEnvelope{
			Method: "icrc1_transfer",
			Args:   transferArgs{To: to, Amount: amountSats},
		}).
		Post(c.callURL())
	if err != nil {
		return 0, fmt.Errorf("icrc1_transfer request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("icrc1_transfer: gateway status %d: %s", resp.StatusCode(), resp.String())
	}

	var out transferResult
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return 0, fmt.Errorf("icrc1_transfer: response parsing failed: %w", err)
	}
	if len(out.Err) > 0 {
		return 0, &TransferError{Message: string(out.Err)}
	}
	if out.Ok == nil {
		return 0, fmt.Errorf("icrc1_transfer: response carries neither Ok nor Err")
	}
	return *out.Ok, nil
}

func (c *Client) queryURL() string {
	return c.base + "/api/v1/canister/" + c.canister + "/query"
}

func (c *Client) callURL() string {
	return c.base + "/api/v1/canister/" + c.canister + "/call"
}
