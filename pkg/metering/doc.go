// Package metering gates paid AI generation on the user's prepaid token
// balance. Authorization happens before the provider call with an estimated
// cost; settlement happens after with the exact usage the provider reports,
// and is allowed to drive the balance negative because the usage already
// happened. The deficient account is flagged for the caller; whether a
// deficient account blocks the next request is a configurable policy.
package metering
