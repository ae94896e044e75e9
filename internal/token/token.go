// Package token implements the elastic-supply debt token. Holdings are
// stored as shares; a single global scale factor converts shares to
// displayed balances, so a rebase touches one number instead of every
// account.
package token

import (
	"errors"
	"math/big"
	"sort"

	"github.com/govm-net/StabuLink/internal/fixedpoint"
	"github.com/govm-net/StabuLink/internal/ledger"
)

var (
	// ErrUnauthorized is returned when a caller other than the authority
	// attempts mint, burn or rebase.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidScale is returned by Rebase for a non-positive scale.
	ErrInvalidScale = errors.New("invalid scale")

	// ErrInsufficientAllowance is returned when a delegated transfer
	// exceeds the approved amount.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// BaseScale is the neutral scale factor. At BaseScale one share displays
// as one unit.
var BaseScale = new(big.Int).Set(fixedpoint.UnitScale)

// Ledger is the share-based token ledger. It is not safe for concurrent
// use; all mutation happens on the engine goroutine.
type Ledger struct {
	authority   ledger.Account
	scale       *big.Int
	totalShares *big.Int
	shares      map[ledger.Account]*big.Int
	allowances  map[ledger.Account]map[ledger.Account]*big.Int
}

// NewLedger creates an empty token ledger at the neutral scale. Only the
// authority account may mint, burn and rebase.
func NewLedger(authority ledger.Account) *Ledger {
	return &Ledger{
		authority:   authority,
		scale:       new(big.Int).Set(BaseScale),
		totalShares: new(big.Int),
		shares:      make(map[ledger.Account]*big.Int),
		allowances:  make(map[ledger.Account]map[ledger.Account]*big.Int),
	}
}

// toShares converts a displayed amount to shares at the current scale,
// rounding down.
func (t *Ledger) toShares(amount *big.Int) *big.Int {
	return fixedpoint.MulDiv(amount, t.scale, BaseScale)
}

// toDisplayed converts shares to a displayed amount at the current scale,
// rounding down.
func (t *Ledger) toDisplayed(shares *big.Int) *big.Int {
	return fixedpoint.MulDiv(shares, BaseScale, t.scale)
}

// BalanceOf returns the displayed balance of the account.
func (t *Ledger) BalanceOf(acct ledger.Account) *big.Int {
	if s, ok := t.shares[acct]; ok {
		return t.toDisplayed(s)
	}
	return new(big.Int)
}

// SharesOf returns the raw share count of the account. The returned value
// is a copy.
func (t *Ledger) SharesOf(acct ledger.Account) *big.Int {
	if s, ok := t.shares[acct]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}

// Scale returns the current scale factor as a copy.
func (t *Ledger) Scale() *big.Int {
	return new(big.Int).Set(t.scale)
}

// TotalSupply returns the displayed supply across all holders.
func (t *Ledger) TotalSupply() *big.Int {
	return t.toDisplayed(t.totalShares)
}

// Allowance returns the remaining displayed amount that spender may move
// from owner.
func (t *Ledger) Allowance(owner, spender ledger.Account) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

// Mint credits amount to the account. Only the authority may call it.
func (t *Ledger) Mint(caller, to ledger.Account, amount *big.Int) error {
	if caller != t.authority {
		return ErrUnauthorized
	}
	t.creditShares(to, t.toShares(amount))
	return nil
}

// Burn debits amount from the account. Only the authority may call it.
func (t *Ledger) Burn(caller, from ledger.Account, amount *big.Int) error {
	if caller != t.authority {
		return ErrUnauthorized
	}
	return t.debitDisplayed(from, amount)
}

// Transfer moves a displayed amount from the caller to another account.
func (t *Ledger) Transfer(from, to ledger.Account, amount *big.Int) error {
	shares, err := t.sharesForDebit(from, amount)
	if err != nil {
		return err
	}
	t.shares[from].Sub(t.shares[from], shares)
	t.creditShares(to, shares)
	t.totalShares.Sub(t.totalShares, shares)
	return nil
}

// Approve sets the displayed amount spender may move from owner,
// replacing any previous approval.
func (t *Ledger) Approve(owner, spender ledger.Account, amount *big.Int) {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[ledger.Account]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
}

// TransferFrom moves a displayed amount from owner to recipient on behalf
// of spender, consuming allowance. Allowance and balance are both checked
// before any mutation.
func (t *Ledger) TransferFrom(spender, owner, to ledger.Account, amount *big.Int) error {
	allowance := t.Allowance(owner, spender)
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	shares, err := t.sharesForDebit(owner, amount)
	if err != nil {
		return err
	}
	t.allowances[owner][spender].Sub(t.allowances[owner][spender], amount)
	t.shares[owner].Sub(t.shares[owner], shares)
	t.creditShares(to, shares)
	t.totalShares.Sub(t.totalShares, shares)
	return nil
}

// CanTransferFrom reports whether a delegated transfer of amount would
// succeed. Operations that must validate every leg before mutating use it.
func (t *Ledger) CanTransferFrom(spender, owner ledger.Account, amount *big.Int) bool {
	if t.Allowance(owner, spender).Cmp(amount) < 0 {
		return false
	}
	_, err := t.sharesForDebit(owner, amount)
	return err == nil
}

// Rebase replaces the scale factor. Every displayed balance changes in the
// same proportion; no shares move.
func (t *Ledger) Rebase(caller ledger.Account, newScale *big.Int) error {
	if caller != t.authority {
		return ErrUnauthorized
	}
	if newScale.Sign() <= 0 {
		return ErrInvalidScale
	}
	t.scale.Set(newScale)
	return nil
}

// sharesForDebit converts amount to shares and verifies the holder can
// cover it in displayed terms.
func (t *Ledger) sharesForDebit(from ledger.Account, amount *big.Int) (*big.Int, error) {
	if t.BalanceOf(from).Cmp(amount) < 0 {
		return nil, ledger.ErrInsufficientBalance
	}
	shares := t.toShares(amount)
	if held := t.shares[from]; shares.Cmp(held) > 0 {
		shares.Set(held)
	}
	return shares, nil
}

func (t *Ledger) creditShares(to ledger.Account, shares *big.Int) {
	if shares.Sign() == 0 {
		return
	}
	bal, ok := t.shares[to]
	if !ok {
		bal = new(big.Int)
		t.shares[to] = bal
	}
	bal.Add(bal, shares)
	t.totalShares.Add(t.totalShares, shares)
}

func (t *Ledger) debitDisplayed(from ledger.Account, amount *big.Int) error {
	shares, err := t.sharesForDebit(from, amount)
	if err != nil {
		return err
	}
	t.shares[from].Sub(t.shares[from], shares)
	t.totalShares.Sub(t.totalShares, shares)
	return nil
}

// Snapshot captures the full token state for persistence.
type Snapshot struct {
	Scale       *big.Int              `json:"scale"`
	TotalShares *big.Int              `json:"total_shares"`
	Shares      []ledger.BalanceEntry `json:"shares"`
	Allowances  []AllowanceEntry      `json:"allowances"`
}

// AllowanceEntry is one approval row of a token snapshot.
type AllowanceEntry struct {
	Owner   ledger.Account `json:"owner"`
	Spender ledger.Account `json:"spender"`
	Amount  *big.Int       `json:"amount"`
}

// Snapshot returns the token state in deterministic order.
func (t *Ledger) Snapshot() Snapshot {
	snap := Snapshot{
		Scale:       new(big.Int).Set(t.scale),
		TotalShares: new(big.Int).Set(t.totalShares),
	}
	for acct, s := range t.shares {
		if s.Sign() == 0 {
			continue
		}
		snap.Shares = append(snap.Shares, ledger.BalanceEntry{Account: acct, Balance: new(big.Int).Set(s)})
	}
	sort.Slice(snap.Shares, func(i, j int) bool { return snap.Shares[i].Account < snap.Shares[j].Account })
	for owner, m := range t.allowances {
		for spender, a := range m {
			if a.Sign() == 0 {
				continue
			}
			snap.Allowances = append(snap.Allowances, AllowanceEntry{Owner: owner, Spender: spender, Amount: new(big.Int).Set(a)})
		}
	}
	sort.Slice(snap.Allowances, func(i, j int) bool {
		if snap.Allowances[i].Owner != snap.Allowances[j].Owner {
			return snap.Allowances[i].Owner < snap.Allowances[j].Owner
		}
		return snap.Allowances[i].Spender < snap.Allowances[j].Spender
	})
	return snap
}

// Restore replaces the token state with a snapshot.
func (t *Ledger) Restore(snap Snapshot) {
	t.scale = new(big.Int).Set(snap.Scale)
	t.totalShares = new(big.Int).Set(snap.TotalShares)
	t.shares = make(map[ledger.Account]*big.Int, len(snap.Shares))
	for _, e := range snap.Shares {
		t.shares[e.Account] = new(big.Int).Set(e.Balance)
	}
	t.allowances = make(map[ledger.Account]map[ledger.Account]*big.Int)
	for _, e := range snap.Allowances {
		m, ok := t.allowances[e.Owner]
		if !ok {
			m = make(map[ledger.Account]*big.Int)
			t.allowances[e.Owner] = m
		}
		m[e.Spender] = new(big.Int).Set(e.Amount)
	}
}
