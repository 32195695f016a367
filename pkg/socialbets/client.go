// Package socialbets is a Go client for the SocialBets HTTP API. Requests
// that act as a caller are signed with the client's key.
package socialbets

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/betdapp/socialbets-smartcontracts/internal/auth"
)

// ErrNoKey is returned by calls that need a signing key when none is set.
var ErrNoKey = errors.New("socialbets: signing key required")

// Client calls the SocialBets API.
type Client struct {
	baseURL    string
	key        *ecdsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithKey signs caller requests with key.
func WithKey(key *ecdsa.PrivateKey) Option {
	return func(c *Client) { c.key = key }
}

// WithHTTPClient replaces the default 30s-timeout http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the API at baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyFromHex parses a hex private key, with or without 0x.
func KeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
}

// Address is the signing address, or the zero address without a key.
func (c *Client) Address() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// do sends a request and decodes a 2xx body into out. Mutating requests
// are signed when the client has a key; GETs never are, since identical
// GETs within a second would reuse a signature the server has seen.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.key != nil {
		if err := auth.SignRequest(req, c.key, raw, c.now()); err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// --- reads ---

// Bet returns a live bet.
func (c *Client) Bet(ctx context.Context, id string) (*Bet, error) {
	var resp struct {
		Bet Bet `json:"bet"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/bets/"+id, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Bet, nil
}

// ActiveBets lists the ids of live bets where addr holds role.
func (c *Client) ActiveBets(ctx context.Context, addr common.Address, role string) ([]string, error) {
	var resp struct {
		BetIDs []string `json:"betIds"`
	}
	path := "/v1/addresses/" + addr.Hex() + "/bets/" + role
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.BetIDs, nil
}

// DueBets lists bets whose deadline has passed.
func (c *Client) DueBets(ctx context.Context, limit int) ([]Bet, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Bets []Bet `json:"bets"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/bets/due", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Bets, nil
}

// CalculateID returns the id a bet with these terms would get.
func (c *Client) CalculateID(ctx context.Context, req CalculateIDRequest) (string, error) {
	var resp struct {
		BetID string `json:"betId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/bets/calculate-id", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.BetID, nil
}

// Fee quotes the platform fee for two stakes.
func (c *Client) Fee(ctx context.Context, first, second *big.Int) (*FeeQuote, error) {
	q := url.Values{"first": {first.String()}, "second": {second.String()}}
	var quote FeeQuote
	if err := c.do(ctx, http.MethodGet, "/v1/fees", q, nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// MediatorFee returns the wei a mediator would earn on bet id.
func (c *Client) MediatorFee(ctx context.Context, id string) (*big.Int, error) {
	var resp struct {
		Fee string `json:"fee"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/bets/"+id+"/mediator-fee", nil, nil, &resp); err != nil {
		return nil, err
	}
	fee, ok := new(big.Int).SetString(resp.Fee, 10)
	if !ok {
		return nil, fmt.Errorf("decode response: bad fee %q", resp.Fee)
	}
	return fee, nil
}

// Params returns the deployment parameters.
func (c *Client) Params(ctx context.Context) (*Params, error) {
	var resp struct {
		Params Params `json:"params"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/params", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Params, nil
}

// Balance returns addr's ledger balance.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*Balance, error) {
	var resp struct {
		Balance Balance `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/addresses/"+addr.Hex()+"/balance", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Balance, nil
}

// --- signed actions ---

func (c *Client) requireKey() error {
	if c.key == nil {
		return ErrNoKey
	}
	return nil
}

type receiptEnvelope struct {
	Receipt Receipt `json:"receipt"`
	Joined  bool    `json:"joined"`
}

// CreateBet offers a bet as the signing address.
func (c *Client) CreateBet(ctx context.Context, req CreateBetRequest) (*Receipt, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	var resp receiptEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/bets", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Receipt, nil
}

// Participate joins bet id with value wei. joined is false when the join
// came too late and cancelled the bet instead.
func (c *Client) Participate(ctx context.Context, id string, value *big.Int) (joined bool, r *Receipt, err error) {
	if err := c.requireKey(); err != nil {
		return false, nil, err
	}
	var resp receiptEnvelope
	body := map[string]string{"value": value.String()}
	if err := c.do(ctx, http.MethodPost, "/v1/bets/"+id+"/participate", nil, body, &resp); err != nil {
		return false, nil, err
	}
	return resp.Joined, &resp.Receipt, nil
}

// Vote records the signing party's answer.
func (c *Client) Vote(ctx context.Context, id, answer string) (*Receipt, error) {
	return c.answer(ctx, id, "vote", answer)
}

// Mediate settles an escalated bet as its mediator.
func (c *Client) Mediate(ctx context.Context, id, answer string) (*Receipt, error) {
	return c.answer(ctx, id, "mediate", answer)
}

func (c *Client) answer(ctx context.Context, id, action, answer string) (*Receipt, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	var resp receiptEnvelope
	body := map[string]string{"answer": answer}
	if err := c.do(ctx, http.MethodPost, "/v1/bets/"+id+"/"+action, nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Receipt, nil
}

// Timeout cranks a bet whose waiting period of the given kind has passed.
func (c *Client) Timeout(ctx context.Context, id, kind string) (*Receipt, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	var resp receiptEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/bets/"+id+"/timeouts/"+kind, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Receipt, nil
}

// Withdraw requests a withdrawal of amount wei from the signing address.
func (c *Client) Withdraw(ctx context.Context, amount *big.Int) (*Withdrawal, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	var w Withdrawal
	body := map[string]string{"amount": amount.String()}
	if err := c.do(ctx, http.MethodPost, "/v1/ledger/withdraw", nil, body, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// RecordDeposit credits addr with an observed on-chain deposit. Owner only.
func (c *Client) RecordDeposit(ctx context.Context, addr common.Address, amount *big.Int, txHash string) error {
	if err := c.requireKey(); err != nil {
		return err
	}
	body := map[string]string{"address": addr.Hex(), "amount": amount.String(), "txHash": txHash}
	return c.do(ctx, http.MethodPost, "/v1/admin/deposits", nil, body, nil)
}
