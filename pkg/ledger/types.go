package ledger

import (
	"time"

	"github.com/google/uuid"
)

// AccountType distinguishes private users from companies. Company accounts
// receive VAT invoices for purchases; individual accounts do not.
type AccountType string

const (
	AccountTypeIndividual AccountType = "individual"
	AccountTypeCompany    AccountType = "company"
)

// TransactionType marks the direction of a ledger entry.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// PaymentType distinguishes one-off token top-ups from subscription charges.
type PaymentType string

const (
	PaymentOneTime      PaymentType = "one-time"
	PaymentSubscription PaymentType = "subscription"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, 49.00 PLN is Amount: 4900, Currency: "PLN".
type Money struct {
	Amount   int64  `json:"amount" bson:"amount"`
	Currency string `json:"currency" bson:"currency"`
}

// User is the aggregate root of the ledger. Transactions, payments and
// snapshots reference it by ID; the balance field is the only mutable
// ledger state and is guarded by the service's per-user lock.
type User struct {
	ID           uuid.UUID   `json:"id" bson:"_id"`
	Email        string      `json:"email" bson:"email"`
	Name         string      `json:"name" bson:"name"`
	PasswordHash string      `json:"-" bson:"password_hash"`
	AccountType  AccountType `json:"account_type" bson:"account_type"`

	// Company billing details, used only when AccountType is company.
	CompanyName     string `json:"company_name,omitempty" bson:"company_name,omitempty"`
	ContactEmail    string `json:"contact_email,omitempty" bson:"contact_email,omitempty"`
	Street          string `json:"street,omitempty" bson:"street,omitempty"`
	StreetNumber    string `json:"street_number,omitempty" bson:"street_number,omitempty"`
	ApartmentNumber string `json:"apartment_number,omitempty" bson:"apartment_number,omitempty"`
	City            string `json:"city,omitempty" bson:"city,omitempty"`
	PostalCode      string `json:"postal_code,omitempty" bson:"postal_code,omitempty"`
	TaxID           string `json:"tax_id,omitempty" bson:"tax_id,omitempty"`

	TokenBalance     int64   `json:"token_balance" bson:"token_balance"`
	PlanID           *string `json:"plan_id,omitempty" bson:"plan_id,omitempty"`
	ReferralCount    int     `json:"referral_count" bson:"referral_count"`
	ReferralPaid     bool    `json:"referral_paid" bson:"referral_paid"`
	BalanceDeficient bool    `json:"balance_deficient" bson:"balance_deficient"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// IsCompany reports whether the user is billed as a company.
func (u *User) IsCompany() bool {
	return u.AccountType == AccountTypeCompany
}

// Transaction is an append-only ledger entry. It is never mutated after
// creation; Value is always positive, the sign comes from Type.
type Transaction struct {
	ID        uuid.UUID       `json:"id" bson:"_id"`
	UserID    uuid.UUID       `json:"user_id" bson:"user_id"`
	Value     int64           `json:"value" bson:"value"`
	Title     string          `json:"title" bson:"title"`
	Type      TransactionType `json:"type" bson:"type"`
	Timestamp time.Time       `json:"timestamp" bson:"timestamp"`
}

// Signed returns the transaction value with its sign applied.
func (t Transaction) Signed() int64 {
	if t.Type == TransactionExpense {
		return -t.Value
	}
	return t.Value
}

// Payment is an append-only purchase record. Transactions answer "why did
// the balance change", payments answer "what was bought and for how much".
type Payment struct {
	ID        uuid.UUID   `json:"id" bson:"_id"`
	UserID    uuid.UUID   `json:"user_id" bson:"user_id"`
	Price     Money       `json:"price" bson:"price"`
	Tokens    int64       `json:"tokens" bson:"tokens"`
	Title     string      `json:"title" bson:"title"`
	Type      PaymentType `json:"type" bson:"type"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
}

// BalanceSnapshot records the balance after each change, forming an audit
// trail independent of the transaction list.
type BalanceSnapshot struct {
	UserID    uuid.UUID `json:"user_id" bson:"user_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Balance   int64     `json:"balance" bson:"balance"`
}
