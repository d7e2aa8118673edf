package invoicing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultInfaktBaseURL = "https://api.infakt.pl/v3"

// InfaktConfig holds the inFakt API configuration.
type InfaktConfig struct {
	APIKey  string        `env:"INFAKT_API_KEY,required"`
	BaseURL string        `env:"INFAKT_BASE_URL"`
	Timeout time.Duration `env:"INFAKT_TIMEOUT" envDefault:"30s"`
}

// InfaktClient implements Provider against the inFakt v3 REST API.
type InfaktClient struct {
	cfg    InfaktConfig
	client *http.Client
}

// NewInfaktClient creates an inFakt-backed invoicing provider.
func NewInfaktClient(cfg InfaktConfig) (*InfaktClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("invoicing: inFakt API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultInfaktBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &InfaktClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *InfaktClient) FindOrCreateClient(ctx context.Context, details ClientDetails) (string, error) {
	query := url.Values{}
	query.Set("q[email_eq]", details.MailingEmail)

	var existing struct {
		Entities []struct {
			ID int64 `json:"id"`
		} `json:"entities"`
	}
	if err := c.do(ctx, http.MethodGet, "/clients.json?"+query.Encode(), nil, &existing); err != nil {
		return "", err
	}
	if len(existing.Entities) > 0 {
		return strconv.FormatInt(existing.Entities[0].ID, 10), nil
	}

	payload := map[string]any{
		"client": map[string]any{
			"name":                 details.Name,
			"email":                details.Email,
			"company_name":         details.CompanyName,
			"street":               details.Street,
			"street_number":        details.StreetNumber,
			"flat_number":          details.FlatNumber,
			"city":                 details.City,
			"country":              details.Country,
			"postal_code":          details.PostalCode,
			"nip":                  details.TaxID,
			"mailing_company_mail": details.MailingEmail,
		},
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/clients.json", payload, &created); err != nil {
		return "", err
	}
	return strconv.FormatInt(created.ID, 10), nil
}

func (c *InfaktClient) IssueInvoice(ctx context.Context, inv Invoice) (string, error) {
	today := time.Now().UTC().Format("2006-01-02")

	payload := map[string]any{
		"invoice": map[string]any{
			"client_company_name": inv.ClientCompanyName,
			"client_id":           inv.ClientID,
			"invoice_date":        today,
			"sale_date":           today,
			"paid_date":           today,
			"status":              "paid",
			"payment_method":      "card",
			"paid_price":          inv.GrossPrice,
			"services": []map[string]any{
				{
					"name":        inv.ServiceName,
					"pkwiu":       "62.01",
					"tax_symbol":  23,
					"gross_price": inv.GrossPrice,
				},
			},
		},
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/invoices.json", payload, &created); err != nil {
		return "", err
	}
	return strconv.FormatInt(created.ID, 10), nil
}

func (c *InfaktClient) MarkPaid(ctx context.Context, invoiceID string) error {
	payload := map[string]any{"invoice": map[string]string{"status": "paid"}}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/invoices/%s/paid.json", invoiceID), payload, nil)
}

func (c *InfaktClient) Deliver(ctx context.Context, invoiceID string) error {
	payload := map[string]string{"print_type": "original"}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/invoices/%s/deliver_via_email.json", invoiceID), payload, nil)
}

func (c *InfaktClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("invoicing: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return errors.Join(ErrProvider, err)
	}
	req.Header.Set("X-inFakt-ApiKey", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Join(ErrProvider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Join(ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Join(ErrProvider, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Join(ErrProvider, fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}
