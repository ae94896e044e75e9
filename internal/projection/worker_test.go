package projection

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"github.com/govm-net/StabuLink/internal/fixedpoint"
	"github.com/govm-net/StabuLink/internal/ledger"
	"github.com/govm-net/StabuLink/internal/token"
)

func amt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad amount: " + s)
	}
	return v
}

// The balances projection stores displayed amounts, so a rebase must
// move every stored row the same direction the ledger moves them:
// balance × oldScale / newScale.
func TestRescaleBalanceMatchesLedgerRebase(t *testing.T) {
	tokens := token.NewLedger(ledger.AccountAuthority)
	holder := ledger.UserAccount(uuid.New())

	minted := amt("1000000000000000000")
	if err := tokens.Mint(ledger.AccountAuthority, holder, minted); err != nil {
		t.Fatalf("mint error: %v", err)
	}
	before := tokens.BalanceOf(holder)

	// Rebase to 0.98× base: every displayed balance grows by 1/0.98.
	newScale := amt("980000000000000000")
	if err := tokens.Rebase(ledger.AccountAuthority, newScale); err != nil {
		t.Fatalf("rebase error: %v", err)
	}
	after := tokens.BalanceOf(holder)
	if after.Cmp(before) <= 0 {
		t.Fatalf("balance after shrink-rebase = %s, want above %s", after, before)
	}

	got := rescaleBalance(before, fixedpoint.UnitScale, newScale)
	if got.Cmp(after) != 0 {
		t.Errorf("rescaleBalance = %s, want %s (ledger balance)", got, after)
	}
}

func TestRescaleBalanceRoundTripsScaleChanges(t *testing.T) {
	tokens := token.NewLedger(ledger.AccountAuthority)
	holder := ledger.UserAccount(uuid.New())
	if err := tokens.Mint(ledger.AccountAuthority, holder, amt("2250000000000000000")); err != nil {
		t.Fatalf("mint error: %v", err)
	}

	// Walk the projection through the same scale changes as the ledger;
	// the stored row must track BalanceOf at every step. Scales divide
	// exactly so flooring cannot hide an inverted rescale.
	scales := []string{
		"500000000000000000",
		"250000000000000000",
		"1000000000000000000",
	}
	projected := tokens.BalanceOf(holder)
	prevScale := new(big.Int).Set(fixedpoint.UnitScale)
	for _, s := range scales {
		next := amt(s)
		if err := tokens.Rebase(ledger.AccountAuthority, next); err != nil {
			t.Fatalf("rebase to %s error: %v", s, err)
		}
		projected = rescaleBalance(projected, prevScale, next)
		if want := tokens.BalanceOf(holder); projected.Cmp(want) != 0 {
			t.Errorf("projected balance at scale %s = %s, want %s", s, projected, want)
		}
		prevScale = next
	}
}
