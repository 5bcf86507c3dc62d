// Package auth resolves wallet sessions to user ids and gates the admin and
// integration surfaces.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WalletClient talks to the wallet-authentication service. Every mutating
// call into the engine carries a wallet session token; the wallet service is
// the only party that can map it to a user id.
type WalletClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         WalletUser `json:"user"`
}

type WalletUser struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

func NewWalletClient(baseURL, apiKey string) *WalletClient {
	return &WalletClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// BeginChallenge asks the wallet service for a message the user signs with
// their wallet key to prove address ownership.
func (c *WalletClient) BeginChallenge(ctx context.Context, address string) (string, error) {
	payload := map[string]string{"address": address}
	var out struct {
		Challenge string `json:"challenge"`
	}
	if err := c.postJSON(ctx, "/auth/v1/challenge", payload, &out); err != nil {
		return "", err
	}
	return out.Challenge, nil
}

// CompleteChallenge exchanges a signed challenge for a session.
func (c *WalletClient) CompleteChallenge(ctx context.Context, address, signature string) (Session, error) {
	payload := map[string]string{
		"address":   address,
		"signature": signature,
	}
	var out Session
	if err := c.postJSON(ctx, "/auth/v1/verify", payload, &out); err != nil {
		return Session{}, err
	}
	return out, nil
}

// VerifyAccessToken resolves a session token to the wallet user behind it.
func (c *WalletClient) VerifyAccessToken(ctx context.Context, accessToken string) (WalletUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/session", nil)
	if err != nil {
		return WalletUser{}, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return WalletUser{}, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return WalletUser{}, fmt.Errorf("verify token status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var user WalletUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return WalletUser{}, fmt.Errorf("decode user: %w", err)
	}
	return user, nil
}

func (c *WalletClient) postJSON(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wallet request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("wallet status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
