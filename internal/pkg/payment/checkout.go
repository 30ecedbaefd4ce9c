package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/FlorianWeber/ListFox/internal/pkg/env"
)

const defaultCheckoutAPIBaseURL = "https://api.payflow.example.com/v1"

// CheckoutClient creates hosted payment sessions at the payment provider.
type CheckoutClient struct {
	APIKey     string
	APIBaseURL string
	ReturnURL  string

	HTTPClient *http.Client
}

// NewCheckoutClientFromEnv builds a checkout client from environment
// configuration.
func NewCheckoutClientFromEnv() *CheckoutClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	returnURL := strings.TrimSpace(env.GetEnv("CHECKOUT_RETURN_URL", ""))
	if returnURL == "" && base != "" {
		returnURL = base + "/checkout/return"
	}

	return &CheckoutClient{
		APIKey:     strings.TrimSpace(env.GetEnv("CHECKOUT_API_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("CHECKOUT_API_BASE_URL", defaultCheckoutAPIBaseURL), "/"),
		ReturnURL:  returnURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type checkoutSessionRequest struct {
	Plan              string `json:"plan"`
	CustomerEmail     string `json:"customer_email"`
	ClientReferenceID string `json:"client_reference_id"`
	ReturnURL         string `json:"return_url,omitempty"`
	Metadata          struct {
		ListingID string `json:"listing_id"`
	} `json:"metadata"`
}

type checkoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateSession creates a hosted payment session for the given plan and
// identity and returns the URL the registrant is redirected to. The
// listing identifier travels as the session's client reference so the
// provider echoes it back in webhook events.
func (c *CheckoutClient) CreateSession(ctx context.Context, listingUUID, email, plan string) (string, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return "", errors.New("CHECKOUT_API_KEY is not configured")
	}
	if strings.TrimSpace(listingUUID) == "" || strings.TrimSpace(email) == "" {
		return "", errors.New("listing id and email are required")
	}

	payload := checkoutSessionRequest{
		Plan:              plan,
		CustomerEmail:     email,
		ClientReferenceID: listingUUID,
		ReturnURL:         c.ReturnURL,
	}
	payload.Metadata.ListingID = listingUUID

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("checkout session request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var session checkoutSessionResponse
	if err := json.Unmarshal(raw, &session); err != nil {
		return "", fmt.Errorf("invalid checkout session response: %w", err)
	}
	if strings.TrimSpace(session.URL) == "" {
		return "", errors.New("checkout session response carried no url")
	}
	return session.URL, nil
}
