// Package client is a Go client for the auction house API. Requests carry the
// session cookies; a request rejected with 401 is retried once after a single
// refresh, and a second failure surfaces as ErrAuthExpired.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	model "auction-house/internal/models"
)

// ErrAuthExpired is returned when a request still fails authentication after
// the one refresh it is allowed.
var ErrAuthExpired = errors.New("authentication expired")

// APIError is a non-2xx response.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to one auction house server.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Jar must be set for sessions
// to work.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for baseURL with its own cookie jar.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client: cookie jar: %w", err)
	}
	c := &Client{
		base: base,
		http: &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Jar returns the cookie jar holding the session.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

// BaseURL returns the server address.
func (c *Client) BaseURL() *url.URL { return c.base }

// Do runs an authenticated request: attempt, then on 401 refresh once and
// retry once. out receives the data field of a successful response.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	payload, err := encode(body)
	if err != nil {
		return err
	}

	err = c.send(ctx, method, path, payload, out)
	if !isUnauthorized(err) {
		return err
	}

	if err := c.send(ctx, http.MethodPost, "/refresh", nil, nil); err != nil {
		if isUnauthorized(err) {
			return fmt.Errorf("client: %s %s: %w", method, path, ErrAuthExpired)
		}
		return err
	}

	err = c.send(ctx, method, path, payload, out)
	if isUnauthorized(err) {
		return fmt.Errorf("client: %s %s: %w", method, path, ErrAuthExpired)
	}
	return err
}

// Signup creates an account.
func (c *Client) Signup(ctx context.Context, username, email, password string) (model.User, error) {
	var u model.User
	err := c.send(ctx, http.MethodPost, "/signup", mustEncode(map[string]string{
		"username":         username,
		"email":            email,
		"password":         password,
		"confirm_password": password,
	}), &u)
	return u, err
}

// Login starts a session; the credential cookies land in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (model.User, error) {
	var u model.User
	err := c.send(ctx, http.MethodPost, "/login", mustEncode(map[string]string{
		"email":    email,
		"password": password,
	}), &u)
	return u, err
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/logout", nil, nil)
}

// ChangePassword replaces the logged in user's password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.Do(ctx, http.MethodPut, "/change-password", map[string]string{
		"current_password": current,
		"new_password":     next,
		"confirm_password": next,
	}, nil)
}

// Me returns the logged in user.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var u model.User
	err := c.Do(ctx, http.MethodGet, "/me", nil, &u)
	return u, err
}

// CreateAuctionParams are the fields of a new auction.
type CreateAuctionParams struct {
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Category      string            `json:"category,omitempty"`
	Kind          model.AuctionKind `json:"type"`
	StartingPrice float64           `json:"starting_price"`
	FloorPrice    float64           `json:"floor_price,omitempty"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
}

// CreateAuction lists a new auction.
func (c *Client) CreateAuction(ctx context.Context, p CreateAuctionParams) (model.Auction, error) {
	var a model.Auction
	err := c.Do(ctx, http.MethodPost, "/auctions", p, &a)
	return a, err
}

// GetAuction reads an auction.
func (c *Client) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	var a model.Auction
	err := c.send(ctx, http.MethodGet, "/auctions/"+url.PathEscape(auctionID), nil, &a)
	return a, err
}

// BidReceipt is the server's answer to an accepted bid.
type BidReceipt struct {
	BidID        string              `json:"bid_id"`
	AuctionID    string              `json:"auction_id"`
	Amount       float64             `json:"amount"`
	CurrentPrice float64             `json:"current_price"`
	Status       model.AuctionStatus `json:"status"`
}

// PlaceBid bids amount on an auction.
func (c *Client) PlaceBid(ctx context.Context, auctionID string, amount float64) (BidReceipt, error) {
	var r BidReceipt
	err := c.Do(ctx, http.MethodPost, "/auctions/"+url.PathEscape(auctionID)+"/bids", map[string]float64{"bidAmount": amount}, &r)
	return r, err
}

// CloseAuction closes an auction as its seller.
func (c *Client) CloseAuction(ctx context.Context, auctionID string) (model.CloseResult, error) {
	var r model.CloseResult
	err := c.Do(ctx, http.MethodPost, "/auctions/"+url.PathEscape(auctionID)+"/close", nil, &r)
	return r, err
}

// Notifications lists the user's notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	var ns []model.Notification
	err := c.Do(ctx, http.MethodGet, "/notifications", nil, &ns)
	return ns, err
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("client: decode data: %w", err)
	}
	return nil
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

func encode(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("client: encode body: %w", err)
	}
	return payload, nil
}

func mustEncode(v any) []byte {
	payload, _ := json.Marshal(v)
	return payload
}
