// Package ledger implements the prepaid token ledger: user balances,
// append-only transaction and purchase records, and balance snapshots.
//
// Every credit or debit is applied as one logical unit under a per-user
// lock: the balance mutation, the transaction append, and the balance
// snapshot either all happen or the partial write is surfaced as
// ErrLedgerWriteIncomplete so a reconciliation pass can rebuild the
// balance from the transaction list via Service.Recompute.
//
// The invariant the package maintains is that a user's TokenBalance
// always equals the signed sum of their transactions (income positive,
// expense negative) plus the initial balance.
package ledger
