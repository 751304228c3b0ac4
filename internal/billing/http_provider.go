package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPProvider talks to the payment gateway over its JSON API.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type pixChargeRequest struct {
	PaymentID     string `json:"payment_id"`
	AmountCents   int64  `json:"amount_cents"`
	PayerName     string `json:"payer_name"`
	PayerEmail    string `json:"payer_email,omitempty"`
	PayerDocument string `json:"payer_document,omitempty"`
	ExpiryMinutes int    `json:"expiry_minutes"`
}

type cardLinkRequest struct {
	PaymentID     string `json:"payment_id"`
	AmountCents   int64  `json:"amount_cents"`
	ExpiryMinutes int    `json:"expiry_minutes"`
}

type instrumentResponse struct {
	InstrumentRef string    `json:"instrument_ref"`
	URL           string    `json:"url"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (p *HTTPProvider) CreatePixCharge(ctx context.Context, paymentID uuid.UUID, amountCents int64, payer Payer, expiryMinutes int) (*Instrument, error) {
	req := pixChargeRequest{
		PaymentID:     paymentID.String(),
		AmountCents:   amountCents,
		PayerName:     payer.Name,
		PayerEmail:    payer.Email,
		PayerDocument: payer.Document,
		ExpiryMinutes: expiryMinutes,
	}
	return p.post(ctx, "/v1/pix_charges", req)
}

func (p *HTTPProvider) CreateCardLink(ctx context.Context, paymentID uuid.UUID, amountCents int64, expiryMinutes int) (*Instrument, error) {
	req := cardLinkRequest{
		PaymentID:     paymentID.String(),
		AmountCents:   amountCents,
		ExpiryMinutes: expiryMinutes,
	}
	return p.post(ctx, "/v1/card_links", req)
}

func (p *HTTPProvider) post(ctx context.Context, path string, payload any) (*Instrument, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrProvider, path, resp.StatusCode, string(snippet))
	}

	var out instrumentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	if out.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: %s response missing expires_at", ErrProvider, path)
	}

	return &Instrument{
		Ref:       out.InstrumentRef,
		URL:       out.URL,
		ExpiresAt: out.ExpiresAt,
	}, nil
}
