package ledger

import (
	"errors"
	"math/big"
	"sort"
)

// ErrInsufficientBalance is returned when a debit or transfer would push an
// account balance below zero.
var ErrInsufficientBalance = errors.New("insufficient balance")

// NativeLedger tracks native-unit balances per account. Amounts are
// 18-decimal fixed-point integers and never go negative. The ledger is not
// safe for concurrent use; all mutation happens on the engine goroutine.
type NativeLedger struct {
	balances map[Account]*big.Int
}

// NewNativeLedger creates an empty native ledger.
func NewNativeLedger() *NativeLedger {
	return &NativeLedger{balances: make(map[Account]*big.Int)}
}

// BalanceOf returns the current balance of the account. Unknown accounts
// have a zero balance. The returned value is a copy.
func (l *NativeLedger) BalanceOf(acct Account) *big.Int {
	if bal, ok := l.balances[acct]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Credit adds amount to the account balance.
func (l *NativeLedger) Credit(acct Account, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	bal, ok := l.balances[acct]
	if !ok {
		bal = new(big.Int)
		l.balances[acct] = bal
	}
	bal.Add(bal, amount)
}

// Debit removes amount from the account balance. It fails without mutation
// when the balance is too small.
func (l *NativeLedger) Debit(acct Account, amount *big.Int) error {
	bal, ok := l.balances[acct]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return nil
}

// Transfer moves amount from one account to another. The debit is checked
// before any mutation so a failed transfer leaves both balances untouched.
func (l *NativeLedger) Transfer(from, to Account, amount *big.Int) error {
	if err := l.Debit(from, amount); err != nil {
		return err
	}
	l.Credit(to, amount)
	return nil
}

// CanDebit reports whether the account can cover amount. Used by operations
// that must validate every leg before mutating any of them.
func (l *NativeLedger) CanDebit(acct Account, amount *big.Int) bool {
	bal, ok := l.balances[acct]
	return ok && bal.Cmp(amount) >= 0
}

// Snapshot returns all non-zero balances in deterministic account order.
func (l *NativeLedger) Snapshot() []BalanceEntry {
	entries := make([]BalanceEntry, 0, len(l.balances))
	for acct, bal := range l.balances {
		if bal.Sign() == 0 {
			continue
		}
		entries = append(entries, BalanceEntry{Account: acct, Balance: new(big.Int).Set(bal)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Account < entries[j].Account })
	return entries
}

// SetBalance overwrites the account balance. Only snapshot restore uses it.
func (l *NativeLedger) SetBalance(acct Account, balance *big.Int) {
	l.balances[acct] = new(big.Int).Set(balance)
}

// BalanceEntry is one row of a ledger snapshot.
type BalanceEntry struct {
	Account Account  `json:"account"`
	Balance *big.Int `json:"balance"`
}
