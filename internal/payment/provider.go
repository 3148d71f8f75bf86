package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/okoshkin/go_market/internal/domain"
)

// ErrProviderTimeout distinguishes a timed-out provider call from a
// definitive decline; the attempt stays PENDING for reconciliation
// because the charge may have gone through.
var ErrProviderTimeout = errors.New("payment provider timed out")

type AuthorizeRequest struct {
	AttemptID uuid.UUID            `json:"attempt_id"`
	OrderID   uuid.UUID            `json:"order_id"`
	Amount    float64              `json:"amount"`
	Currency  string               `json:"currency"`
	Method    domain.PaymentMethod `json:"method"`
}

// Result is the provider's view of an attempt. Status is PENDING when the
// provider confirms asynchronously (redirect or webhook).
type Result struct {
	Status        domain.PaymentStatus `json:"status"`
	ProviderRef   string               `json:"provider_ref"`
	FailureReason string               `json:"failure_reason,omitempty"`
}

// Provider is the external payment gateway.
type Provider interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error)
	Capture(ctx context.Context, providerRef string) error
	Void(ctx context.Context, providerRef string) error
	Refund(ctx context.Context, providerRef string, amount float64) error
	Status(ctx context.Context, providerRef string) (*Result, error)
}

// HTTPProvider talks to the gateway over its JSON API. Every call runs
// under the caller's context; deadline expiry maps to ErrProviderTimeout.
type HTTPProvider struct {
	baseURL string
	client  httpDoer
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{baseURL: baseURL, client: newBreakerDoer(client)}
}

// breakerDoer trips after consecutive transport failures so a dead
// gateway does not hold every checkout for the full client timeout.
// HTTP error statuses are handled by the caller and do not count.
type breakerDoer struct {
	client *http.Client
	cb     *gobreaker.CircuitBreaker[*http.Response]
}

func newBreakerDoer(client *http.Client) *breakerDoer {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "payment-provider",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	return &breakerDoer{client: client, cb: cb}
}

func (d *breakerDoer) Do(req *http.Request) (*http.Response, error) {
	return d.cb.Execute(func() (*http.Response, error) {
		return d.client.Do(req)
	})
}

func (p *HTTPProvider) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	var res Result
	if err := p.post(ctx, "/v1/charges", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (p *HTTPProvider) Capture(ctx context.Context, providerRef string) error {
	return p.post(ctx, fmt.Sprintf("/v1/charges/%s/capture", providerRef), nil, nil)
}

func (p *HTTPProvider) Void(ctx context.Context, providerRef string) error {
	return p.post(ctx, fmt.Sprintf("/v1/charges/%s/void", providerRef), nil, nil)
}

func (p *HTTPProvider) Refund(ctx context.Context, providerRef string, amount float64) error {
	body := map[string]float64{"amount": amount}
	return p.post(ctx, fmt.Sprintf("/v1/charges/%s/refund", providerRef), body, nil)
}

func (p *HTTPProvider) Status(ctx context.Context, providerRef string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/charges/"+providerRef, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapTransportErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider status returned %d", resp.StatusCode)
	}
	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode provider status: %w", err)
	}
	return &res, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode provider request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return wrapTransportErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode provider response: %w", err)
		}
	}
	return nil
}

func wrapTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}
	return fmt.Errorf("provider call failed: %w", err)
}
