// Package odin is the exchange-ledger adapter for the Odin trading
// canister, spoken through an IC HTTP gateway. Balances are reported in
// millisatoshis; withdrawal amounts are submitted in millisatoshis.
package odin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"odinsweep/internal/session"
)

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

// WithdrawRequest mirrors the canister's token_withdraw argument.
type WithdrawRequest struct {
	Protocol   string `json:"protocol"` // "ckbtc"
	TokenID    string `json:"tokenid"`
	Address    string `json:"address"`
	AmountMsat int64  `json:"amount"`
}

type callEnvelope struct {
	Method string      `json:"method"`
	Args   interface{} `json:"args"`
}

type callResult struct {
	Ok  json.RawMessage `json:"ok"`
	Err string          `json:"err"`
}

// Balance returns the bot's exchange balance for a token in
// milli-subunits (millisatoshis for "btc").
func (c *Client) Balance(ctx context.Context, sess *session.Session, tokenID string) (int64, error) {
	var out callResult
	resp, err := c.authed(ctx, sess).
		SetBody(callEnvelope{
			Method: "getBalance",
			Args:   []string{sess.Principal, tokenID},
		}).
		Post(c.callURL())
	if err != nil {
		return 0, fmt.Errorf("getBalance request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("getBalance: gateway status %d: %s", resp.StatusCode(), resp.String())
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return 0, &DecodeError{Method: "getBalance", Err: err}
	}
	if out.Err != "" {
		return 0, &APIError{Method: "getBalance", Message: out.Err}
	}

	var balance int64
	if err := json.Unmarshal(out.Ok, &balance); err != nil {
		return 0, &DecodeError{Method: "getBalance", Err: err}
	}
	return balance, nil
}

// Withdraw asks the canister to release funds from the exchange balance
// to the bot's on-chain account. A *DecodeError return means the gateway
// answered but the payload was unparseable; the withdrawal may still
// have gone through.
func (c *Client) Withdraw(ctx context.Context, sess *session.Session, req WithdrawRequest) error {
	resp, err := c.authed(ctx, sess).
		SetBody(callEnvelope{Method: "token_withdraw", Args: req}).
		Post(c.callURL())
	if err != nil {
		return fmt.Errorf("token_withdraw request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("token_withdraw: gateway status %d: %s", resp.StatusCode(), resp.String())
	}

	var out callResult
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return &DecodeError{Method: "token_withdraw", Err: err}
	}
	if out.Err != "" {
		return &APIError{Method: "token_withdraw", Message: out.Err}
	}
	return nil
}

// SIWBLogin performs a headless sign-in-with-bitcoin login for the bot
// and returns a fresh authenticated session.
func (c *Client) SIWBLogin(ctx context.Context, bot string) (*session.Session, error) {
	var out struct {
		Principal string `json:"principal"`
		Token     string `json:"token"`
		Secret    string `json:"secret"`
		ExpiresAt int64  `json:"expires_at"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"bot": bot}).
		SetResult(&out).
		Post(c.base + "/siwb/login")
	if err != nil {
		return nil, fmt.Errorf("siwb login request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("siwb login: gateway status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Principal == "" || out.Token == "" {
		return nil, fmt.Errorf("siwb login: incomplete session in response")
	}

	sess := &session.Session{
		Bot:       bot,
		Principal: out.Principal,
		Token:     out.Token,
		Secret:    out.Secret,
	}
	if out.ExpiresAt > 0 {
		sess.ExpiresAt = time.Unix(out.ExpiresAt, 0)
	}
	return sess, nil
}

func (c *Client) callURL() string {
	return c.base + "/api/v1/canister/" + c.canister + "/call"
}

func (c *Client) authed(ctx context.Context, sess *session.Session) *resty.Request {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := ts // simple

	return c.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+sess.Token).
		SetHeader("nonce", nonce).
		SetHeader("timestamp", ts).
		SetHeader("sign", Sign(sess.Secret, nonce, sess.Principal, ts))
}
