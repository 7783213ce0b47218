// Package rates fetches the BTC/USD exchange rate used to decorate log
// output. Rates never influence withdrawal amounts.
package rates

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const coinbaseURL = "https://api.coinbase.com/v2/exchange-rates"

type Client struct {
	base string
	rest *resty.Client
}

func NewClient(timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	return &Client{base: coinbaseURL, rest: r}
}

// BTCUSD returns the current BTC/USD rate from Coinbase.
func (c *Client) BTCUSD(ctx context.Context) (float64, error) {
	var out struct {
		Data struct {
			Rates map[string]string `json:"rates"`
		} `json:"data"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("currency", "BTC").
		SetResult(&out).
		Get(c.base)
	if err != nil {
		return 0, fmt.Errorf("rate request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("rate request: status %d", resp.StatusCode())
	}
	usd, ok := out.Data.Rates["USD"]
	if !ok {
		return 0, fmt.Errorf("rate response missing USD")
	}
	rate, err := strconv.ParseFloat(usd, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed USD rate %q: %w", usd, err)
	}
	return rate, nil
}
