// Package letterclient calls the letters API over HTTP.
package letterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"letterbox/pkg/domain"
	"letterbox/pkg/mailbox"
)

// Client is a letters API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx response. Not-ready deliver errors carry the two
// timestamps.
type APIError struct {
	Status       int
	Code         string
	Message      string
	RequestID    string
	DeliveryTime *time.Time
	CurrentTime  *time.Time
}

func (e *APIError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsNotReady reports whether err is the deliver precondition failure.
func IsNotReady(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.DeliveryTime != nil
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New constructs a client for baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateUser registers pincode. Created is false when it already existed.
func (c *Client) CreateUser(ctx context.Context, pincode string) (UserResponse, error) {
	var out UserResponse
	status, err := c.do(ctx, http.MethodPost, "/users", map[string]string{"pincode": pincode}, &out)
	if err != nil {
		return UserResponse{}, err
	}
	out.Created = status == http.StatusCreated
	return out, nil
}

// GetUser returns the user with their sent and received letters.
func (c *Client) GetUser(ctx context.Context, pincode string) (domain.User, error) {
	var out struct {
		User domain.User `json:"user"`
	}
	_, err := c.do(ctx, http.MethodGet, "/users?"+url.Values{"pincode": {pincode}}.Encode(), nil, &out)
	return out.User, err
}

// SendLetter posts a new letter.
func (c *Client) SendLetter(ctx context.Context, req CreateLetterRequest) (CreateLetterResponse, error) {
	var out CreateLetterResponse
	_, err := c.do(ctx, http.MethodPost, "/letters", req, &out)
	return out, err
}

// ListReceived lists letters addressed to pincode. Without includePending
// only letters whose delivery time has passed are returned.
func (c *Client) ListReceived(ctx context.Context, pincode string, includePending bool) ([]domain.Letter, error) {
	q := url.Values{"receiverPincode": {pincode}}
	if includePending {
		q.Set("includePending", "true")
	}
	return c.listLetters(ctx, q)
}

// ListSent lists letters sent from pincode.
func (c *Client) ListSent(ctx context.Context, pincode string) ([]domain.Letter, error) {
	return c.listLetters(ctx, url.Values{"senderPincode": {pincode}})
}

func (c *Client) listLetters(ctx context.Context, q url.Values) ([]domain.Letter, error) {
	var out struct {
		Letters []domain.Letter `json:"letters"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/letters?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Letters == nil {
		out.Letters = []domain.Letter{}
	}
	return out.Letters, nil
}

// GetLetter fetches one letter.
func (c *Client) GetLetter(ctx context.Context, id string) (domain.Letter, error) {
	var out struct {
		Letter domain.Letter `json:"letter"`
	}
	_, err := c.do(ctx, http.MethodGet, "/letters/"+url.PathEscape(id), nil, &out)
	return out.Letter, err
}

// Deliver marks a letter opened. It fails with a not-ready APIError before
// the delivery time.
func (c *Client) Deliver(ctx context.Context, id string) (domain.Letter, error) {
	var out DeliverResponse
	_, err := c.do(ctx, http.MethodPost, "/letters/"+url.PathEscape(id)+"/deliver", nil, &out)
	return out.Letter, err
}

// Mailbox returns the partitioned mailbox of pincode.
func (c *Client) Mailbox(ctx context.Context, pincode string) (mailbox.View, error) {
	var out mailbox.View
	if _, err := c.do(ctx, http.MethodGet, "/mailbox?"+url.Values{"pincode": {pincode}}.Encode(), nil, &out); err != nil {
		return mailbox.View{}, err
	}
	for i := range out.Pending {
		out.Pending[i].Remaining = time.Duration(out.Pending[i].RemainingSeconds) * time.Second
	}
	return out, nil
}

// GetPostbox returns the postbox customization of pincode.
func (c *Client) GetPostbox(ctx context.Context, pincode string) (domain.Postbox, error) {
	var out struct {
		Postbox domain.Postbox `json:"postbox"`
	}
	_, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(pincode)+"/postbox", nil, &out)
	return out.Postbox, err
}

// SavePostbox replaces the postbox customization of box.Pincode.
func (c *Client) SavePostbox(ctx context.Context, box domain.Postbox) (domain.Postbox, error) {
	var out struct {
		Postbox domain.Postbox `json:"postbox"`
	}
	_, err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(box.Pincode)+"/postbox", box, &out)
	return out.Postbox, err
}

// Overlay downloads the rendered PNG of a letter's strokes.
func (c *Client) Overlay(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/letters/"+url.PathEscape(id)+"/overlay", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return resp.StatusCode, decodeAPIError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func decodeAPIError(resp *http.Response) error {
	var errResp struct {
		Error        string     `json:"error"`
		Code         string     `json:"code"`
		RequestID    string     `json:"requestId"`
		DeliveryTime *time.Time `json:"deliveryTime"`
		CurrentTime  *time.Time `json:"currentTime"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	msg := errResp.Error
	if msg == "" {
		msg = resp.Status
	}
	requestID := errResp.RequestID
	if requestID == "" {
		requestID = resp.Header.Get("X-Request-Id")
	}
	return &APIError{
		Status:       resp.StatusCode,
		Code:         errResp.Code,
		Message:      msg,
		RequestID:    requestID,
		DeliveryTime: errResp.DeliveryTime,
		CurrentTime:  errResp.CurrentTime,
	}
}
