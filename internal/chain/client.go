// Package chain talks to the external chain indexer and transfer builder.
// The service never signs anything itself; it reads observed transfers and
// submits dispatch-ready batches with a short validity window.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Transfer is an on-chain transfer as reported by the indexer.
type Transfer struct {
	TxHash        string `json:"tx_hash"`
	AmountNanos   int64  `json:"amount_nanos"`
	Memo          string `json:"memo"`
	Confirmations int    `json:"confirmations"`
}

// SendRequest is one outbound transfer within a batch.
type SendRequest struct {
	ToAddress   string `json:"to_address"`
	AmountNanos int64  `json:"amount_nanos"`
	Memo        string `json:"memo"`
}

// SendReceipt reports the external transaction id for a sent transfer, in
// the same order as the requests.
type SendReceipt struct {
	TxHash string `json:"tx_hash"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// sendValidity bounds how long a signed batch stays submittable, to limit
// clock-skew replays.
const sendValidity = 5 * time.Minute

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("chain %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TransfersByMemo returns every transfer the indexer has observed carrying
// the given memo.
func (c *Client) TransfersByMemo(ctx context.Context, memo string) ([]Transfer, error) {
	var out struct {
		Transfers []Transfer `json:"transfers"`
	}
	path := "/v1/transfers?memo=" + url.QueryEscape(memo)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Transfers, nil
}

// SendTransfers submits one batch for a single destination network and
// returns a receipt per request.
func (c *Client) SendTransfers(ctx context.Context, network string, reqs []SendRequest) ([]SendReceipt, error) {
	in := struct {
		Network    string        `json:"network"`
		ValidUntil time.Time     `json:"valid_until"`
		Transfers  []SendRequest `json:"transfers"`
	}{
		Network:    network,
		ValidUntil: time.Now().UTC().Add(sendValidity),
		Transfers:  reqs,
	}
	var out struct {
		Receipts []SendReceipt `json:"receipts"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/transfers/send", in, &out); err != nil {
		return nil, err
	}
	if len(out.Receipts) != len(reqs) {
		return nil, fmt.Errorf("chain send: %d receipts for %d transfers", len(out.Receipts), len(reqs))
	}
	return out.Receipts, nil
}
