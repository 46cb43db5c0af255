// AngelaMos | 2026
// client.go

package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/config"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
)

const (
	jsonAPIContentType = "application/vnd.api+json"
	maxResponseBytes   = 1 << 20
)

var (
	ErrMissingParameters = errors.New("checkout requires a user and a product variant")
	ErrMisconfigured     = errors.New("checkout provider credentials are not configured")
	ErrProviderTimeout   = errors.New("checkout provider timed out")
	ErrProviderResponse  = errors.New("checkout provider returned an unusable response")
)

// ProviderRejectedError carries the provider's own error details so the
// caller can surface them.
type ProviderRejectedError struct {
	Status  int
	Details []string
}

func (e *ProviderRejectedError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("checkout rejected by provider: status %d", e.Status)
	}
	return fmt.Sprintf("checkout rejected by provider: status %d: %s",
		e.Status, strings.Join(e.Details, "; "))
}

type Request struct {
	UserID    string
	Email     string
	VariantID string
}

// Client creates hosted checkouts on a JSON:API billing provider.
type Client struct {
	apiKey     string
	storeID    string
	baseURL    string
	testMode   bool
	httpClient *http.Client
}

func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		storeID:  strings.TrimSpace(cfg.StoreID),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		testMode: cfg.TestMode,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) Configured() bool {
	return c.apiKey != "" && c.storeID != ""
}

type checkoutDocument struct {
	Data checkoutResource `json:"data"`
}

type checkoutResource struct {
	Type          string                `json:"type"`
	Attributes    checkoutAttributes    `json:"attributes"`
	Relationships checkoutRelationships `json:"relationships"`
}

type checkoutAttributes struct {
	CheckoutData checkoutData `json:"checkout_data"`
	TestMode     bool         `json:"test_mode,omitempty"`
}

type checkoutData struct {
	Email  string            `json:"email,omitempty"`
	Custom map[string]string `json:"custom"`
}

type checkoutRelationships struct {
	Store   relationship `json:"store"`
	Variant relationship `json:"variant"`
}

type relationship struct {
	Data resourceIdentifier `json:"data"`
}

type resourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type checkoutResponse struct {
	Data struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
	Errors []struct {
		Status string `json:"status"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func buildDocument(req Request, storeID string, testMode bool) checkoutDocument {
	return checkoutDocument{
		Data: checkoutResource{
			Type: "checkouts",
			Attributes: checkoutAttributes{
				CheckoutData: checkoutData{
					Email:  req.Email,
					Custom: map[string]string{"user_id": req.UserID},
				},
				TestMode: testMode,
			},
			Relationships: checkoutRelationships{
				Store:   relationship{Data: resourceIdentifier{Type: "stores", ID: storeID}},
				Variant: relationship{Data: resourceIdentifier{Type: "variants", ID: req.VariantID}},
			},
		},
	}
}

// CreateCheckout returns the hosted checkout URL. It never retries; a
// rejected request is returned as *ProviderRejectedError.
func (c *Client) CreateCheckout(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", ErrMisconfigured
	}

	ctx, span := core.StartSpan(ctx, "checkout.provider.create",
		attribute.String("billing.variant_id", req.VariantID),
	)
	defer span.End()

	payload, err := json.Marshal(buildDocument(req, c.storeID, c.testMode))
	if err != nil {
		return "", fmt.Errorf("encode checkout: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkouts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build checkout request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", jsonAPIContentType)
	httpReq.Header.Set("Content-Type", jsonAPIContentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		core.SetSpanError(ctx, err)
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w: %w", ErrProviderTimeout, err)
		}
		return "", fmt.Errorf("call checkout provider: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w: %w", ErrProviderTimeout, err)
		}
		return "", fmt.Errorf("read checkout response: %w", err)
	}

	var out checkoutResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rejected := &ProviderRejectedError{Status: resp.StatusCode}
		if decodeErr == nil {
			for _, e := range out.Errors {
				switch {
				case e.Detail != "":
					rejected.Details = append(rejected.Details, e.Detail)
				case e.Title != "":
					rejected.Details = append(rejected.Details, e.Title)
				}
			}
		}
		core.SetSpanError(ctx, rejected)
		return "", rejected
	}

	if decodeErr != nil {
		return "", fmt.Errorf("%w: %w", ErrProviderResponse, decodeErr)
	}
	if out.Data.Attributes.URL == "" {
		return "", fmt.Errorf("%w: missing checkout url", ErrProviderResponse)
	}

	return out.Data.Attributes.URL, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
