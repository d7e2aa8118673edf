// Package billing reconciles payment-processor webhook events with the token
// ledger: subscription activations, renewals, one-time purchases, referral
// bonuses and the invoicing side effects that follow a credit. Events are
// verified, deduplicated by processor event ID and applied exactly once.
package billing
