// Package invoicing integrates the external invoicing capability. Invoices
// are a best-effort side effect of balance credits: they are enqueued on a
// durable outbox and retried with backoff, and their failure never rolls
// back the credit that triggered them.
package invoicing

import (
	"context"
	"errors"
)

var (
	// ErrProvider wraps invoicing API failures.
	ErrProvider = errors.New("invoicing: provider error")

	// ErrJobNotFound is returned for unknown outbox job IDs.
	ErrJobNotFound = errors.New("invoicing: outbox job not found")
)

// ClientDetails identifies the invoiced party on the provider side.
type ClientDetails struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	CompanyName  string `json:"company_name"`
	Street       string `json:"street"`
	StreetNumber string `json:"street_number"`
	FlatNumber   string `json:"flat_number"`
	City         string `json:"city"`
	Country      string `json:"country"`
	PostalCode   string `json:"postal_code"`
	TaxID        string `json:"tax_id"`
	MailingEmail string `json:"mailing_email"`
}

// Invoice describes a single paid invoice to issue. GrossPrice is in minor
// currency units.
type Invoice struct {
	ClientID          string `json:"client_id"`
	ClientCompanyName string `json:"client_company_name"`
	ServiceName       string `json:"service_name"`
	GrossPrice        int64  `json:"gross_price"`
	Currency          string `json:"currency"`
}

// Provider is the invoicing capability contract.
type Provider interface {
	// FindOrCreateClient resolves the provider client by email, creating it
	// when missing.
	FindOrCreateClient(ctx context.Context, details ClientDetails) (string, error)

	// IssueInvoice creates a paid invoice and returns its ID.
	IssueInvoice(ctx context.Context, inv Invoice) (string, error)

	// MarkPaid flags the invoice as settled.
	MarkPaid(ctx context.Context, invoiceID string) error

	// Deliver sends the invoice to the client by email.
	Deliver(ctx context.Context, invoiceID string) error
}
