package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// ErrNoRoutes is returned when the routing API answers successfully but
// proposes no route for the requested transfer. Callers treat this as fatal:
// there is nothing to dispatch.
var ErrNoRoutes = errors.New("quote: no matching routes")

const defaultRequestTimeout = 30 * time.Second

// RoutesRequest describes the transfer for which routes are requested.
type RoutesRequest struct {
	FromChainID int64          `json:"fromChainId"`
	ToChainID   int64          `json:"toChainId"`
	FromToken   common.Address `json:"fromTokenAddress"`
	ToToken     common.Address `json:"toTokenAddress"`
	FromAddress common.Address `json:"fromAddress"`
	ToAddress   common.Address `json:"toAddress"`
	FromAmount  string         `json:"fromAmount"`
	ToAmountMin string         `json:"toAmountMin,omitempty"`
}

type routesResponse struct {
	Routes []Route `json:"routes"`
}

// Client fetches route quotes over HTTP.
type Client struct {
	base string
	hc   *http.Client
	log  log.Logger
}

// NewClient returns a quote client for the given API base URL, e.g.
// "https://li.quest/v1". A nil httpClient falls back to a client with a
// 30 second overall timeout.
func NewClient(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		base: base,
		hc:   httpClient,
		log:  log.New("component", "quote"),
	}
}

// Routes requests candidate routes for the transfer. A non-2xx response or
// an empty route list is an error; both abort the run upstream.
func (c *Client) Routes(ctx context.Context, req RoutesRequest) ([]Route, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("quote: marshal request: %w", err)
	}

	url := c.base + "/advanced/routes"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("quote: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.log.Debug("Requesting routes", "url", url, "fromChain", req.FromChainID, "toChain", req.ToChainID, "amount", req.FromAmount)
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("quote: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Keep a short prefix of the body for diagnostics; routing APIs
		// return JSON error envelopes.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("quote: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded routesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("quote: decode response: %w", err)
	}
	if len(decoded.Routes) == 0 {
		return nil, ErrNoRoutes
	}

	c.log.Info("Received routes", "count", len(decoded.Routes))
	return decoded.Routes, nil
}
