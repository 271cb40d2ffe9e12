/**
 * @description
 * This package provides a client for the external exchange-rate provider. It
 * fetches the full PLN-based rate table in a single request; the converter in the
 * app layer decides how to cache it and what to fall back to when the provider
 * is unreachable.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package ratesclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the exchange-rate provider API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new rate provider client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RatesResponse is the provider's latest-rates payload for a base currency.
type RatesResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// FetchRates retrieves the full rate table with PLN as the base currency. The
// returned map is keyed by target currency code; a key's value is the amount of
// that currency one PLN buys.
func (c *Client) FetchRates(ctx context.Context) (map[string]float64, error) {
	url := fmt.Sprintf("%s/latest/PLN", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rate provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload RatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode rates response: %w", err)
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("rate provider returned an empty rate table")
	}
	return payload.Rates, nil
}
