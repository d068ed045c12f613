// Package models defines the core domain models for the ledger.
//
// # Entities
//
//   - User: a registered account; may set a monthly budget
//   - Group: a set of members sharing expenses in one base currency
//   - Expense: an amount paid by one user and split into Shares
//   - Share: one debtor's portion of an Expense
//   - Payment: a recorded settle-up transfer between two group members
//
// # Invariants
//
// An Expense owns its Shares; the sum of share amounts equals the expense
// Amount within ShareTolerance. Amount is always in the base currency of the
// expense's group (or the default currency for personal expenses);
// OriginalAmount, Currency and ExchangeRate record what the payer entered.
//
// Relationships are expressed as ID strings, never pointers.
package models
