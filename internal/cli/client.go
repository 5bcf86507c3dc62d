package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fintank/internal/auth"
	"fintank/internal/ledger"
	"fintank/internal/ocean"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Challenge(ctx context.Context, address string) (string, error) {
	var out struct {
		Challenge string `json:"challenge"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/challenge", "", map[string]any{
		"address": address,
	}, &out)
	return out.Challenge, err
}

func (c *Client) Verify(ctx context.Context, address, signature string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/verify", "", map[string]any{
		"address":   address,
		"signature": signature,
	}, &out)
	return out, err
}

func (c *Client) Ocean(ctx context.Context, accessToken string) (ocean.OceanView, error) {
	var out ocean.OceanView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/ocean", accessToken, nil, &out)
	return out, err
}

func (c *Client) ListFish(ctx context.Context, accessToken, owner string) ([]ocean.FishView, error) {
	path := "/v1/fish"
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}
	var out struct {
		Fish []ocean.FishView `json:"fish"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out)
	return out.Fish, err
}

func (c *Client) GetFish(ctx context.Context, accessToken, id string) (ocean.FishView, error) {
	var out ocean.FishView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/fish/"+url.PathEscape(id), accessToken, nil, &out)
	return out, err
}

func (c *Client) FishEvents(ctx context.Context, accessToken, id string) ([]ocean.EventView, error) {
	var out struct {
		Events []ocean.EventView `json:"events"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/fish/"+url.PathEscape(id)+"/events", accessToken, nil, &out)
	return out.Events, err
}

func (c *Client) Spawn(ctx context.Context, accessToken, name string, amountNanos int64) (ocean.FishView, error) {
	var out ocean.FishView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/fish", accessToken, map[string]any{
		"name":         name,
		"amount_nanos": amountNanos,
	}, &out)
	return out, err
}

func (c *Client) Feed(ctx context.Context, accessToken, id string, version, amountNanos int64) (ocean.FishView, error) {
	var out ocean.FishView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/fish/"+url.PathEscape(id)+"/feed", accessToken, map[string]any{
		"expected_version": version,
		"amount_nanos":     amountNanos,
	}, &out)
	return out, err
}

func (c *Client) Mark(ctx context.Context, accessToken, hunterID string, hunterVersion int64, preyID string, preyVersion int64) (ocean.MarkResult, error) {
	var out ocean.MarkResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/fish/"+url.PathEscape(hunterID)+"/mark", accessToken, map[string]any{
		"hunter_version": hunterVersion,
		"prey_fish_id":   preyID,
		"prey_version":   preyVersion,
	}, &out)
	return out, err
}

func (c *Client) Hunt(ctx context.Context, accessToken, hunterID string, hunterVersion int64, preyID string, preyVersion int64) (ocean.HuntResult, error) {
	var out ocean.HuntResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/fish/"+url.PathEscape(hunterID)+"/hunt", accessToken, map[string]any{
		"hunter_version": hunterVersion,
		"prey_fish_id":   preyID,
		"prey_version":   preyVersion,
	}, &out)
	return out, err
}

func (c *Client) Exit(ctx context.Context, accessToken, id string, version int64) (ocean.ExitResult, error) {
	var out ocean.ExitResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/fish/"+url.PathEscape(id)+"/exit", accessToken, map[string]any{
		"expected_version": version,
	}, &out)
	return out, err
}

func (c *Client) Resurrect(ctx context.Context, accessToken, deadID, name string, amountNanos int64) (ocean.FishView, error) {
	var out ocean.FishView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/fish/"+url.PathEscape(deadID)+"/resurrect", accessToken, map[string]any{
		"name":         name,
		"amount_nanos": amountNanos,
	}, &out)
	return out, err
}

func (c *Client) Transfer(ctx context.Context, accessToken, id string, version int64, newOwner string) (ocean.FishView, error) {
	var out ocean.FishView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/fish/"+url.PathEscape(id)+"/transfer", accessToken, map[string]any{
		"expected_version": version,
		"new_owner_id":     newOwner,
	}, &out)
	return out, err
}

type BalanceView struct {
	BalanceNanos   int64 `json:"balance_nanos"`
	SpendableNanos int64 `json:"spendable_nanos"`
}

func (c *Client) Balance(ctx context.Context, accessToken string) (BalanceView, error) {
	var out BalanceView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/balance", accessToken, nil, &out)
	return out, err
}

func (c *Client) Ledger(ctx context.Context, accessToken string) ([]ledger.Entry, error) {
	var out struct {
		Entries []ledger.Entry `json:"entries"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/ledger", accessToken, nil, &out)
	return out.Entries, err
}

func (c *Client) Payments(ctx context.Context, accessToken string) ([]ledger.Payment, error) {
	var out struct {
		Payments []ledger.Payment `json:"payments"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/payments", accessToken, nil, &out)
	return out.Payments, err
}

func (c *Client) DepositIntent(ctx context.Context, accessToken string, amountNanos int64) (ledger.DepositIntent, error) {
	var out ledger.DepositIntent
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/deposits/intent", accessToken, map[string]any{
		"amount_nanos": amountNanos,
	}, &out)
	return out, err
}

func (c *Client) RequestWithdrawal(ctx context.Context, accessToken string, amountNanos int64, network, toAddress string) (ledger.Withdrawal, error) {
	var out ledger.Withdrawal
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/withdrawals", accessToken, map[string]any{
		"amount_nanos": amountNanos,
		"network":      network,
		"to_address":   toAddress,
	}, &out)
	return out, err
}

func (c *Client) ListWithdrawals(ctx context.Context, accessToken string) ([]ledger.Withdrawal, error) {
	var out struct {
		Withdrawals []ledger.Withdrawal `json:"withdrawals"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/withdrawals", accessToken, nil, &out)
	return out.Withdrawals, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
