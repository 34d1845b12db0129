package settle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/borglife/wealthd/internal/keystore"
)

// Client talks JSON over HTTP to a settlement-network gateway node.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given gateway base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

type feeRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type feeResponse struct {
	Fee int64 `json:"fee"`
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type transferResponse struct {
	Success  bool   `json:"success"`
	TxRef    string `json:"tx_ref"`
	BlockRef string `json:"block_ref"`
	Error    string `json:"error"`
}

func (c *Client) ExternalBalance(ctx context.Context, address string) (int64, error) {
	var res balanceResponse
	if err := c.get(ctx, "/v1/balance/"+address, &res); err != nil {
		return 0, fmt.Errorf("external balance %s: %w", address, err)
	}
	return res.Balance, nil
}

func (c *Client) EstimateFee(ctx context.Context, from, to string, amount int64) (int64, error) {
	var res feeResponse
	if err := c.post(ctx, "/v1/fees/estimate", feeRequest{From: from, To: to, Amount: amount}, &res); err != nil {
		return 0, fmt.Errorf("estimate fee: %w", err)
	}
	return res.Fee, nil
}

func (c *Client) SubmitTransfer(ctx context.Context, from keystore.Credential, to string, amount int64) (SubmitResult, error) {
	req := transferRequest{From: from.Address(), To: to, Amount: amount}
	var res transferResponse
	if err := c.post(ctx, "/v1/transfers", req, &res); err != nil {
		return SubmitResult{}, fmt.Errorf("submit transfer: %w", err)
	}
	if !res.Success {
		return SubmitResult{}, fmt.Errorf("submit transfer: network rejected: %s", res.Error)
	}
	return SubmitResult{TxRef: res.TxRef, BlockRef: res.BlockRef}, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("settlement health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("settlement health check: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d from %s", resp.StatusCode, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
