package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/uuid"

	"github.com/govm-net/StabuLink/internal/ledger"
)

var authority = ledger.AccountAuthority

func amt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad amount: " + s)
	}
	return v
}

func user() ledger.Account {
	return ledger.UserAccount(uuid.New())
}

// ---------------------------------------------------------------------------
// Mint / burn
// ---------------------------------------------------------------------------

func TestMintRequiresAuthority(t *testing.T) {
	l := NewLedger(authority)
	u := user()

	if err := l.Mint(u, u, amt("100")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Mint by non-authority error = %v, want ErrUnauthorized", err)
	}
	if err := l.Mint(authority, u, amt("100")); err != nil {
		t.Fatalf("Mint by authority error: %v", err)
	}
	if got := l.BalanceOf(u); got.Cmp(amt("100")) != 0 {
		t.Errorf("balance = %s, want 100", got)
	}
}

func TestBurnRequiresAuthorityAndBalance(t *testing.T) {
	l := NewLedger(authority)
	u := user()
	mustMint(t, l, u, "100")

	if err := l.Burn(u, u, amt("10")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Burn by non-authority error = %v, want ErrUnauthorized", err)
	}
	if err := l.Burn(authority, u, amt("101")); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("overdrawn Burn error = %v, want ErrInsufficientBalance", err)
	}
	if err := l.Burn(authority, u, amt("40")); err != nil {
		t.Fatalf("Burn error: %v", err)
	}
	if got := l.BalanceOf(u); got.Cmp(amt("60")) != 0 {
		t.Errorf("balance after burn = %s, want 60", got)
	}
	if got := l.TotalSupply(); got.Cmp(amt("60")) != 0 {
		t.Errorf("supply after burn = %s, want 60", got)
	}
}

// ---------------------------------------------------------------------------
// Transfer / approve
// ---------------------------------------------------------------------------

func TestTransferConservesSupply(t *testing.T) {
	l := NewLedger(authority)
	a, b := user(), user()
	mustMint(t, l, a, "1000000000000000000")

	if err := l.Transfer(a, b, amt("300000000000000000")); err != nil {
		t.Fatalf("Transfer error: %v", err)
	}
	if got := l.BalanceOf(a); got.Cmp(amt("700000000000000000")) != 0 {
		t.Errorf("sender balance = %s, want 7e17", got)
	}
	if got := l.BalanceOf(b); got.Cmp(amt("300000000000000000")) != 0 {
		t.Errorf("receiver balance = %s, want 3e17", got)
	}
	if got := l.TotalSupply(); got.Cmp(amt("1000000000000000000")) != 0 {
		t.Errorf("supply = %s, want 1e18", got)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	l := NewLedger(authority)
	a, b := user(), user()
	mustMint(t, l, a, "50")

	err := l.Transfer(a, b, amt("51"))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("Transfer error = %v, want ErrInsufficientBalance", err)
	}
	if got := l.BalanceOf(a); got.Cmp(amt("50")) != 0 {
		t.Errorf("sender balance after failed transfer = %s, want 50", got)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := NewLedger(authority)
	owner, spender, sink := user(), user(), user()
	mustMint(t, l, owner, "1000")

	l.Approve(owner, spender, amt("600"))

	if err := l.TransferFrom(spender, owner, sink, amt("400")); err != nil {
		t.Fatalf("TransferFrom error: %v", err)
	}
	if got := l.Allowance(owner, spender); got.Cmp(amt("200")) != 0 {
		t.Errorf("remaining allowance = %s, want 200", got)
	}
	if got := l.BalanceOf(sink); got.Cmp(amt("400")) != 0 {
		t.Errorf("sink balance = %s, want 400", got)
	}

	err := l.TransferFrom(spender, owner, sink, amt("300"))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("over-allowance TransferFrom error = %v, want ErrInsufficientAllowance", err)
	}
}

func TestApproveReplacesPrevious(t *testing.T) {
	l := NewLedger(authority)
	owner, spender := user(), user()

	l.Approve(owner, spender, amt("500"))
	l.Approve(owner, spender, amt("120"))

	if got := l.Allowance(owner, spender); got.Cmp(amt("120")) != 0 {
		t.Errorf("allowance = %s, want 120", got)
	}
}

func TestTransferFromChecksBalanceBeforeAllowanceSpend(t *testing.T) {
	l := NewLedger(authority)
	owner, spender, sink := user(), user(), user()
	mustMint(t, l, owner, "10")
	l.Approve(owner, spender, amt("100"))

	err := l.TransferFrom(spender, owner, sink, amt("50"))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("TransferFrom error = %v, want ErrInsufficientBalance", err)
	}
	if got := l.Allowance(owner, spender); got.Cmp(amt("100")) != 0 {
		t.Errorf("allowance after failed transfer = %s, want 100", got)
	}
}

// ---------------------------------------------------------------------------
// Rebase
// ---------------------------------------------------------------------------

func TestRebaseScalesAllBalancesProportionally(t *testing.T) {
	l := NewLedger(authority)
	a, b := user(), user()
	mustMint(t, l, a, "2250000000000000000")
	mustMint(t, l, b, "1000000000000000000")

	// Scale down to 98% of base: every balance grows by 1/0.98.
	newScale := amt("980000000000000000")
	if err := l.Rebase(authority, newScale); err != nil {
		t.Fatalf("Rebase error: %v", err)
	}

	if got, want := l.BalanceOf(a), amt("2295918367346938775"); got.Cmp(want) != 0 {
		t.Errorf("balance a = %s, want %s", got, want)
	}
	if got, want := l.BalanceOf(b), amt("1020408163265306122"); got.Cmp(want) != 0 {
		t.Errorf("balance b = %s, want %s", got, want)
	}
	// Shares are untouched.
	if got := l.SharesOf(a); got.Cmp(amt("2250000000000000000")) != 0 {
		t.Errorf("shares a = %s, want unchanged", got)
	}
}

func TestRebaseRejectsNonPositiveScale(t *testing.T) {
	l := NewLedger(authority)
	if err := l.Rebase(authority, big.NewInt(0)); !errors.Is(err, ErrInvalidScale) {
		t.Errorf("Rebase(0) error = %v, want ErrInvalidScale", err)
	}
	if err := l.Rebase(authority, big.NewInt(-1)); !errors.Is(err, ErrInvalidScale) {
		t.Errorf("Rebase(-1) error = %v, want ErrInvalidScale", err)
	}
	if err := l.Rebase(user(), amt("980000000000000000")); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Rebase by non-authority error = %v, want ErrUnauthorized", err)
	}
}

func TestMintAfterRebaseUsesCurrentScale(t *testing.T) {
	l := NewLedger(authority)
	u := user()
	if err := l.Rebase(authority, amt("500000000000000000")); err != nil {
		t.Fatalf("Rebase error: %v", err)
	}
	mustMint(t, l, u, "1000")

	if got := l.BalanceOf(u); got.Cmp(amt("1000")) != 0 {
		t.Errorf("balance = %s, want 1000", got)
	}
	if got := l.SharesOf(u); got.Cmp(amt("500")) != 0 {
		t.Errorf("shares = %s, want 500", got)
	}
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	l := NewLedger(authority)
	a, b := user(), user()
	mustMint(t, l, a, "700")
	mustMint(t, l, b, "300")
	l.Approve(a, b, amt("50"))
	if err := l.Rebase(authority, amt("900000000000000000")); err != nil {
		t.Fatalf("Rebase error: %v", err)
	}

	restored := NewLedger(authority)
	restored.Restore(l.Snapshot())

	if got, want := restored.BalanceOf(a), l.BalanceOf(a); got.Cmp(want) != 0 {
		t.Errorf("restored balance a = %s, want %s", got, want)
	}
	if got := restored.Allowance(a, b); got.Cmp(amt("50")) != 0 {
		t.Errorf("restored allowance = %s, want 50", got)
	}
	if got, want := restored.Scale(), l.Scale(); got.Cmp(want) != 0 {
		t.Errorf("restored scale = %s, want %s", got, want)
	}
}

func mustMint(t *testing.T, l *Ledger, to ledger.Account, amount string) {
	t.Helper()
	if err := l.Mint(authority, to, amt(amount)); err != nil {
		t.Fatalf("Mint error: %v", err)
	}
}
