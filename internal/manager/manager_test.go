package manager

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/uuid"

	"github.com/govm-net/StabuLink/internal/fixedpoint"
	"github.com/govm-net/StabuLink/internal/ledger"
	"github.com/govm-net/StabuLink/internal/oracle"
	"github.com/govm-net/StabuLink/internal/token"
)

func amt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad amount: " + s)
	}
	return v
}

type fixture struct {
	m      *Manager
	native *ledger.NativeLedger
	tokens *token.Ledger
	owner  ledger.Account
}

// newFixture builds a manager with an oracle pinned at 3000.00000000 and an
// owner funded with 1e15 native units.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	native := ledger.NewNativeLedger()
	tokens := token.NewLedger(ledger.AccountAuthority)
	owner := ledger.UserAccount(uuid.New())
	native.Credit(owner, amt("1000000000000000"))
	m := New(DefaultConfig(), native, tokens, oracle.Static{Price: amt("300000000000")})
	return &fixture{m: m, native: native, tokens: tokens, owner: owner}
}

// ---------------------------------------------------------------------------
// Deposit
// ---------------------------------------------------------------------------

func TestDepositMintsDebtAndCreditsPool(t *testing.T) {
	f := newFixture(t)

	r, err := f.m.Deposit(f.owner, amt("1000000000000000"), 2, 1000)
	if err != nil {
		t.Fatalf("Deposit error: %v", err)
	}
	if r.Position.ID != 1 {
		t.Errorf("position id = %d, want 1", r.Position.ID)
	}
	// Collateral value = 1e15 * 3e11 / 1e8 = 3e18. Tier 2 is 75%.
	if got := r.Value; got.Cmp(amt("3000000000000000000")) != 0 {
		t.Errorf("collateral value = %s, want 3e18", got)
	}
	if got := r.Position.DebtIssued; got.Cmp(amt("2250000000000000000")) != 0 {
		t.Errorf("debt issued = %s, want 2.25e18", got)
	}
	if got := f.tokens.BalanceOf(f.owner); got.Cmp(amt("2250000000000000000")) != 0 {
		t.Errorf("owner token balance = %s, want 2.25e18", got)
	}
	// 1% of the collateral value seeds the pool's token reserve.
	if got := f.tokens.BalanceOf(ledger.AccountPool); got.Cmp(amt("30000000000000000")) != 0 {
		t.Errorf("pool token balance = %s, want 3e16", got)
	}
	// 1% of the collateral itself seeds the pool's native reserve.
	if got := f.native.BalanceOf(ledger.AccountPool); got.Cmp(amt("10000000000000")) != 0 {
		t.Errorf("pool native balance = %s, want 1e13", got)
	}
	if got := f.native.BalanceOf(ledger.AccountCustody); got.Cmp(amt("990000000000000")) != 0 {
		t.Errorf("custody balance = %s, want 9.9e14", got)
	}
	if got := f.native.BalanceOf(f.owner); got.Sign() != 0 {
		t.Errorf("owner native balance = %s, want 0", got)
	}
}

func TestDepositInvalidTier(t *testing.T) {
	f := newFixture(t)

	_, err := f.m.Deposit(f.owner, amt("1000"), 4, 1000)
	if !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("Deposit error = %v, want ErrInvalidTier", err)
	}
	if got := f.native.BalanceOf(f.owner); got.Cmp(amt("1000000000000000")) != 0 {
		t.Errorf("owner balance after rejected deposit = %s, want untouched", got)
	}
}

func TestDepositInsufficientBalance(t *testing.T) {
	f := newFixture(t)

	_, err := f.m.Deposit(f.owner, amt("1000000000000001"), 2, 1000)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("Deposit error = %v, want ErrInsufficientBalance", err)
	}
}

func TestDepositStaleQuoteLeavesLedgersUntouched(t *testing.T) {
	native := ledger.NewNativeLedger()
	tokens := token.NewLedger(ledger.AccountAuthority)
	owner := ledger.UserAccount(uuid.New())
	native.Credit(owner, amt("1000000000000000"))

	feed := oracle.NewFeed(3600)
	feed.SetQuote(oracle.Quote{Price: amt("300000000000"), ObservedAt: 1000})
	m := New(DefaultConfig(), native, tokens, feed)

	_, err := m.Deposit(owner, amt("1000000000000000"), 2, 1000+3601)
	if !errors.Is(err, oracle.ErrStaleQuote) {
		t.Fatalf("Deposit error = %v, want ErrStaleQuote", err)
	}
	if got := native.BalanceOf(owner); got.Cmp(amt("1000000000000000")) != 0 {
		t.Errorf("owner balance = %s, want untouched", got)
	}
	if got := tokens.TotalSupply(); got.Sign() != 0 {
		t.Errorf("token supply = %s, want 0", got)
	}
}

func TestDepositTierRatios(t *testing.T) {
	cases := []struct {
		tier uint8
		want string
	}{
		{1, "1500000000000000000"},
		{2, "2250000000000000000"},
		{3, "2700000000000000000"},
	}
	for _, tc := range cases {
		f := newFixture(t)
		r, err := f.m.Deposit(f.owner, amt("1000000000000000"), tc.tier, 1000)
		if err != nil {
			t.Fatalf("Deposit tier %d error: %v", tc.tier, err)
		}
		if r.Position.DebtIssued.Cmp(amt(tc.want)) != 0 {
			t.Errorf("tier %d debt = %s, want %s", tc.tier, r.Position.DebtIssued, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Withdraw
// ---------------------------------------------------------------------------

func TestWithdrawPaysCollateralLessFee(t *testing.T) {
	f := newFixture(t)
	r, err := f.m.Deposit(f.owner, amt("1000000000000000"), 2, 1000)
	if err != nil {
		t.Fatalf("Deposit error: %v", err)
	}

	closed, err := f.m.Withdraw(f.owner, r.Position.ID)
	if err != nil {
		t.Fatalf("Withdraw error: %v", err)
	}
	if closed.Position.Status != StatusClosed {
		t.Errorf("status = %s, want %s", closed.Position.Status, StatusClosed)
	}
	if got := closed.Payout; got.Cmp(amt("990000000000000")) != 0 {
		t.Errorf("payout = %s, want 9.9e14", got)
	}
	if got := f.native.BalanceOf(f.owner); got.Cmp(amt("990000000000000")) != 0 {
		t.Errorf("owner balance = %s, want 9.9e14", got)
	}
	// Debt tokens are the owner's to keep or trade.
	if got := f.tokens.BalanceOf(f.owner); got.Cmp(amt("2250000000000000000")) != 0 {
		t.Errorf("owner token balance = %s, want unchanged", got)
	}
}

func TestWithdrawConsumedPositionNotFound(t *testing.T) {
	f := newFixture(t)
	r, err := f.m.Deposit(f.owner, amt("1000000000000000"), 2, 1000)
	if err != nil {
		t.Fatalf("Deposit error: %v", err)
	}
	if _, err := f.m.Withdraw(f.owner, r.Position.ID); err != nil {
		t.Fatalf("first Withdraw error: %v", err)
	}

	_, err = f.m.Withdraw(f.owner, r.Position.ID)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("second Withdraw error = %v, want ErrPositionNotFound", err)
	}
	_, err = f.m.Withdraw(f.owner, 42)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("unknown id Withdraw error = %v, want ErrPositionNotFound", err)
	}
}

func TestWithdrawByNonOwnerUnauthorized(t *testing.T) {
	f := newFixture(t)
	r, err := f.m.Deposit(f.owner, amt("1000000000000000"), 2, 1000)
	if err != nil {
		t.Fatalf("Deposit error: %v", err)
	}

	stranger := ledger.UserAccount(uuid.New())
	_, err = f.m.Withdraw(stranger, r.Position.ID)
	if !errors.Is(err, token.ErrUnauthorized) {
		t.Fatalf("Withdraw error = %v, want ErrUnauthorized", err)
	}
	got, err := f.m.Get(r.Position.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Status != StatusOpen {
		t.Errorf("status after unauthorized withdraw = %s, want open", got.Status)
	}
}

// ---------------------------------------------------------------------------
// Liquidation
// ---------------------------------------------------------------------------

func TestLiquidateBeforeMaturity(t *testing.T) {
	f := newFixture(t)
	r, err := f.m.Deposit(f.owner, amt("1000000000000000"), 2, 1000)
	if err != nil {
		t.Fatalf("Deposit error: %v", err)
	}

	keeper := ledger.UserAccount(uuid.New())
	_, err = f.m.Liquidate(keeper, r.Position.ID, 1000+f.m.cfg.MaturitySeconds-1)
	if !errors.Is(err, ErrNotMature) {
		t.Fatalf("Liquidate error = %v, want ErrNotMature", err)
	}
}

func TestLiquidateRoutesCollateralAndDebtToPool(t *testing.T) {
	f := newFixture(t)
	r, err := f.m.Deposit(f.owner, amt("1000000000000000"), 2, 1000)
	if err != nil {
		t.Fatalf("Deposit error: %v", err)
	}
	pos := r.Position

	poolNativeBefore := f.native.BalanceOf(ledger.AccountPool)
	poolTokenBefore := f.tokens.BalanceOf(ledger.AccountPool)

	keeper := ledger.UserAccount(uuid.New())
	closed, err := f.m.Liquidate(keeper, pos.ID, 1000+f.m.cfg.MaturitySeconds)
	if err != nil {
		t.Fatalf("Liquidate error: %v", err)
	}
	if closed.Position.Status != StatusLiquidated {
		t.Errorf("status = %s, want %s", closed.Position.Status, StatusLiquidated)
	}

	// Custody pays collateral less the fee into the pool.
	wantNative := new(big.Int).Add(poolNativeBefore, amt("990000000000000"))
	if got := f.native.BalanceOf(ledger.AccountPool); got.Cmp(wantNative) != 0 {
		t.Errorf("pool native = %s, want %s", got, wantNative)
	}
	// The pool receives exactly the debt recorded at open time.
	wantToken := new(big.Int).Add(poolTokenBefore, pos.DebtIssued)
	if got := f.tokens.BalanceOf(ledger.AccountPool); got.Cmp(wantToken) != 0 {
		t.Errorf("pool token = %s, want %s", got, wantToken)
	}

	_, err = f.m.Liquidate(keeper, pos.ID, 1000+f.m.cfg.MaturitySeconds+1)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("repeat Liquidate error = %v, want ErrPositionNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Queries and snapshots
// ---------------------------------------------------------------------------

func TestByOwnerOrdersById(t *testing.T) {
	f := newFixture(t)
	f.native.Credit(f.owner, amt("2000000000000000"))
	for i := 0; i < 3; i++ {
		if _, err := f.m.Deposit(f.owner, amt("1000000000000000"), 2, int64(1000+i)); err != nil {
			t.Fatalf("Deposit %d error: %v", i, err)
		}
	}

	got := f.m.ByOwner(f.owner)
	if len(got) != 3 {
		t.Fatalf("positions = %d, want 3", len(got))
	}
	for i, pos := range got {
		if pos.ID != uint64(i+1) {
			t.Errorf("position[%d].ID = %d, want %d", i, pos.ID, i+1)
		}
	}
}

func TestSnapshotRestorePreservesConsumedIds(t *testing.T) {
	f := newFixture(t)
	r, err := f.m.Deposit(f.owner, amt("1000000000000000"), 2, 1000)
	if err != nil {
		t.Fatalf("Deposit error: %v", err)
	}
	pos := r.Position
	if _, err := f.m.Withdraw(f.owner, pos.ID); err != nil {
		t.Fatalf("Withdraw error: %v", err)
	}

	restored := New(DefaultConfig(), f.native, f.tokens, oracle.Static{Price: amt("300000000000")})
	restored.Restore(f.m.Snapshot())

	if _, err := restored.Withdraw(f.owner, pos.ID); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("restored Withdraw error = %v, want ErrPositionNotFound", err)
	}
	f.native.Credit(f.owner, amt("1000000000000000"))
	next, err := restored.Deposit(f.owner, amt("1000000000000000"), 2, 2000)
	if err != nil {
		t.Fatalf("Deposit after restore error: %v", err)
	}
	if next.Position.ID != pos.ID+1 {
		t.Errorf("next id = %d, want %d", next.Position.ID, pos.ID+1)
	}
}

func TestDepositRejectsNonPositiveCollateral(t *testing.T) {
	f := newFixture(t)
	if _, err := f.m.Deposit(f.owner, big.NewInt(0), 2, 1000); !errors.Is(err, fixedpoint.ErrNegative) {
		t.Errorf("Deposit(0) error = %v, want ErrNegative", err)
	}
}
