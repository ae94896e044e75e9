package core

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/govm-net/StabuLink/internal/event"
	"github.com/govm-net/StabuLink/internal/ledger"
	"github.com/govm-net/StabuLink/internal/manager"
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

// harness drives a core with buffered output channels and per-partition
// source sequence counters.
type harness struct {
	core    *DeterministicCore
	persist chan CoreOutput
	proj    chan CoreOutput
	owner   ledger.Account
	ownerID uuid.UUID
	seqs    map[string]int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	persist := make(chan CoreOutput, 1024)
	proj := make(chan CoreOutput, 1024)
	ownerID := uuid.New()
	return &harness{
		core:    NewDeterministicCore(0, DefaultConfig(), persist, proj, nil, nil),
		persist: persist,
		proj:    proj,
		owner:   ledger.UserAccount(ownerID),
		ownerID: ownerID,
		seqs:    make(map[string]int64),
	}
}

func (h *harness) nextSeq(partition string) int64 {
	seq := h.seqs[partition]
	h.seqs[partition] = seq + 1
	return seq
}

func (h *harness) quote(t *testing.T, price string, at int64) {
	t.Helper()
	_, err := h.core.ProcessEvent(&event.OracleQuoteUpdate{
		QuoteID:   uuid.New(),
		Price:     amt(price),
		Sequence:  h.nextSeq(event.PartitionPrices),
		Timestamp: time.Unix(at, 0),
	})
	if err != nil {
		t.Fatalf("quote error: %v", err)
	}
}

func (h *harness) fund(t *testing.T, amount string, at int64) {
	t.Helper()
	_, err := h.core.ProcessEvent(&event.NativeDeposit{
		DepositID: uuid.New(),
		UserID:    h.ownerID,
		Amount:    amt(amount),
		Sequence:  h.nextSeq(event.PartitionDeposits),
		Timestamp: time.Unix(at, 0),
	})
	if err != nil {
		t.Fatalf("fund error: %v", err)
	}
}

func (h *harness) apiSeq() int64 {
	return h.nextSeq(event.PartitionAPI)
}

// ---------------------------------------------------------------------------
// End-to-end lifecycle
// ---------------------------------------------------------------------------

func TestCoreFullLifecycle(t *testing.T) {
	h := newHarness(t)
	h.quote(t, "300000000000", 1000)
	h.fund(t, "2000000000000000", 1001)

	// Open a tier 2 position with 1e15 collateral.
	res, err := h.core.ProcessEvent(&event.PositionDeposit{
		CommandID:  uuid.New(),
		Caller:     h.owner,
		Collateral: amt("1000000000000000"),
		Tier:       2,
		Sequence:   h.apiSeq(),
		Timestamp:  time.Unix(1002, 0),
	})
	if err != nil {
		t.Fatalf("position deposit error: %v", err)
	}
	if res.Position == nil || res.Position.ID != 1 {
		t.Fatalf("position = %+v, want id 1", res.Position)
	}
	if got := res.Position.DebtIssued; got.Cmp(amt("2250000000000000000")) != 0 {
		t.Errorf("debt = %s, want 2.25e18", got)
	}
	if len(res.Effects) != 5 {
		t.Errorf("effects = %d, want 5", len(res.Effects))
	}

	// Sell native into the pool seeded by the deposit fee.
	res, err = h.core.ProcessEvent(&event.PoolSell{
		CommandID: uuid.New(),
		Caller:    h.owner,
		AmountIn:  amt("500000000000000"),
		MinOut:    amt("0"),
		Sequence:  h.apiSeq(),
		Timestamp: time.Unix(1100, 0),
	})
	if err != nil {
		t.Fatalf("sell error: %v", err)
	}
	// Reserves were (1e13 native, 3e16 token); out = 3e16 * 99/101.
	if got := res.AmountOut; got.Cmp(amt("29405940594059405")) != 0 {
		t.Errorf("sell out = %s, want 29405940594059405", got)
	}

	// Close the position.
	res, err = h.core.ProcessEvent(&event.PositionWithdraw{
		CommandID:  uuid.New(),
		Caller:     h.owner,
		PositionID: 1,
		Sequence:   h.apiSeq(),
		Timestamp:  time.Unix(1200, 0),
	})
	if err != nil {
		t.Fatalf("withdraw error: %v", err)
	}
	if res.Position.Status != manager.StatusClosed {
		t.Errorf("status = %s, want closed", res.Position.Status)
	}

	// Every applied event landed on the persist channel in order.
	var prev int64 = -1
	for len(h.persist) > 0 {
		out := <-h.persist
		if out.Envelope.Sequence != prev+1 {
			t.Errorf("persist sequence = %d, want %d", out.Envelope.Sequence, prev+1)
		}
		prev = out.Envelope.Sequence
	}
	if prev != 4 {
		t.Errorf("last persisted sequence = %d, want 4", prev)
	}
}

func TestCoreHashChain(t *testing.T) {
	h := newHarness(t)
	h.quote(t, "300000000000", 1000)
	h.fund(t, "1000000000000000", 1001)

	var envs []*event.EventEnvelope
	for len(h.persist) > 0 {
		envs = append(envs, (<-h.persist).Envelope)
	}
	if len(envs) != 2 {
		t.Fatalf("envelopes = %d, want 2", len(envs))
	}
	if envs[1].PrevHash != envs[0].StateHash {
		t.Errorf("hash chain broken: env[1].PrevHash != env[0].StateHash")
	}
	if envs[0].StateHash == envs[1].StateHash {
		t.Errorf("consecutive state hashes identical")
	}
	if h.core.GetStateHash() != envs[1].StateHash {
		t.Errorf("chain tip does not match last envelope")
	}
}

// ---------------------------------------------------------------------------
// Idempotency and ordering
// ---------------------------------------------------------------------------

func TestCoreDuplicateEventSkipped(t *testing.T) {
	h := newHarness(t)
	evt := &event.NativeDeposit{
		DepositID: uuid.New(),
		UserID:    h.ownerID,
		Amount:    amt("1000"),
		Sequence:  0,
		Timestamp: time.Unix(1000, 0),
	}
	if _, err := h.core.ProcessEvent(evt); err != nil {
		t.Fatalf("first apply error: %v", err)
	}

	res, err := h.core.ProcessEvent(evt)
	if err != nil {
		t.Fatalf("duplicate apply error: %v", err)
	}
	if !res.Duplicate {
		t.Errorf("Duplicate = false, want true")
	}
	if got := h.core.GetSequence(); got != 1 {
		t.Errorf("sequence after duplicate = %d, want 1", got)
	}
}

func TestCoreSequenceGapRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.core.ProcessEvent(&event.NativeDeposit{
		DepositID: uuid.New(),
		UserID:    h.ownerID,
		Amount:    amt("1000"),
		Sequence:  5,
		Timestamp: time.Unix(1000, 0),
	})
	if err == nil {
		t.Fatalf("gap accepted, want error")
	}
}

func TestCorePriceGapTolerated(t *testing.T) {
	h := newHarness(t)
	for _, seq := range []int64{0, 7} {
		_, err := h.core.ProcessEvent(&event.OracleQuoteUpdate{
			QuoteID:   uuid.New(),
			Price:     amt("300000000000"),
			Sequence:  seq,
			Timestamp: time.Unix(1000+seq, 0),
		})
		if err != nil {
			t.Fatalf("quote seq %d error: %v", seq, err)
		}
	}
}

func TestCoreRejectedEventConsumesNoSequence(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "1000", 1000)

	// No quote observed yet, so the deposit must fail stale.
	_, err := h.core.ProcessEvent(&event.PositionDeposit{
		CommandID:  uuid.New(),
		Caller:     h.owner,
		Collateral: amt("1000"),
		Tier:       2,
		Sequence:   h.apiSeq(),
		Timestamp:  time.Unix(1001, 0),
	})
	if !errors.Is(err, oracle.ErrStaleQuote) {
		t.Fatalf("deposit error = %v, want ErrStaleQuote", err)
	}
	if got := h.core.GetSequence(); got != 1 {
		t.Errorf("sequence = %d, want 1 (only the deposit credit applied)", got)
	}
	if got := len(h.persist); got != 1 {
		t.Errorf("persisted outputs = %d, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// Authority gating
// ---------------------------------------------------------------------------

func TestCoreRebaseAuthority(t *testing.T) {
	h := newHarness(t)

	_, err := h.core.ProcessEvent(&event.Rebase{
		CommandID: uuid.New(),
		Caller:    h.owner,
		NewScale:  amt("980000000000000000"),
		Sequence:  h.apiSeq(),
		Timestamp: time.Unix(1000, 0),
	})
	if !errors.Is(err, token.ErrUnauthorized) {
		t.Fatalf("rebase by user error = %v, want ErrUnauthorized", err)
	}

	_, err = h.core.ProcessEvent(&event.Rebase{
		CommandID: uuid.New(),
		Caller:    ledger.AccountAuthority,
		NewScale:  amt("980000000000000000"),
		Sequence:  h.apiSeq(),
		Timestamp: time.Unix(1001, 0),
	})
	if err != nil {
		t.Fatalf("rebase by authority error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Swap against approved allowance
// ---------------------------------------------------------------------------

func TestCoreBuyThroughAllowance(t *testing.T) {
	h := newHarness(t)
	h.quote(t, "300000000000", 1000)
	h.fund(t, "1000000000000000", 1001)
	_, err := h.core.ProcessEvent(&event.PositionDeposit{
		CommandID:  uuid.New(),
		Caller:     h.owner,
		Collateral: amt("1000000000000000"),
		Tier:       2,
		Sequence:   h.apiSeq(),
		Timestamp:  time.Unix(1002, 0),
	})
	if err != nil {
		t.Fatalf("deposit error: %v", err)
	}

	// Buy without approval fails and consumes nothing.
	buy := &event.PoolBuy{
		CommandID: uuid.New(),
		Caller:    h.owner,
		AmountIn:  amt("1000000000000000000"),
		MinOut:    amt("0"),
		Sequence:  h.apiSeq(),
		Timestamp: time.Unix(1100, 0),
	}
	if _, err := h.core.ProcessEvent(buy); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("buy error = %v, want ErrInsufficientAllowance", err)
	}

	_, err = h.core.ProcessEvent(&event.TokenApprove{
		CommandID: uuid.New(),
		Caller:    h.owner,
		Spender:   ledger.AccountPool,
		Amount:    amt("1000000000000000000"),
		Sequence:  h.apiSeq(),
		Timestamp: time.Unix(1101, 0),
	})
	if err != nil {
		t.Fatalf("approve error: %v", err)
	}

	buy.CommandID = uuid.New()
	buy.Sequence = h.apiSeq()
	res, err := h.core.ProcessEvent(buy)
	if err != nil {
		t.Fatalf("buy after approve error: %v", err)
	}
	if res.AmountOut.Sign() <= 0 {
		t.Errorf("buy out = %s, want positive", res.AmountOut)
	}
}

// ---------------------------------------------------------------------------
// Snapshot / restore
// ---------------------------------------------------------------------------

func TestCoreSnapshotRestore(t *testing.T) {
	h := newHarness(t)
	h.quote(t, "300000000000", 1000)
	h.fund(t, "2000000000000000", 1001)
	_, err := h.core.ProcessEvent(&event.PositionDeposit{
		CommandID:  uuid.New(),
		Caller:     h.owner,
		Collateral: amt("1000000000000000"),
		Tier:       2,
		Sequence:   h.apiSeq(),
		Timestamp:  time.Unix(1002, 0),
	})
	if err != nil {
		t.Fatalf("deposit error: %v", err)
	}

	snap := h.core.CreateSnapshotState()
	if snap.Sequence != 2 {
		t.Fatalf("snapshot sequence = %d, want 2", snap.Sequence)
	}

	persist := make(chan CoreOutput, 1024)
	proj := make(chan CoreOutput, 1024)
	restored := NewDeterministicCore(0, DefaultConfig(), persist, proj, nil, nil)
	restored.RestoreFromSnapshot(snap)

	if restored.GetSequence() != 3 {
		t.Errorf("restored sequence = %d, want 3", restored.GetSequence())
	}
	if restored.GetStateHash() != h.core.GetStateHash() {
		t.Errorf("restored state hash differs from original")
	}

	// The restored core continues exactly where the original stopped.
	res, err := restored.ProcessEvent(&event.PositionWithdraw{
		CommandID:  uuid.New(),
		Caller:     h.owner,
		PositionID: 1,
		Sequence:   h.apiSeq(),
		Timestamp:  time.Unix(1200, 0),
	})
	if err != nil {
		t.Fatalf("withdraw on restored core error: %v", err)
	}
	if res.Envelope.Sequence != 3 {
		t.Errorf("withdraw sequence = %d, want 3", res.Envelope.Sequence)
	}

	view := &View{core: restored}
	if got := view.NativeBalance(h.owner); got.Cmp(amt("1990000000000000")) != 0 {
		t.Errorf("owner native after restore+withdraw = %s, want 1.99e15", got)
	}
}

// ---------------------------------------------------------------------------
// Query view through the bus
// ---------------------------------------------------------------------------

func TestCoreRunServesQueries(t *testing.T) {
	h := newHarness(t)
	requests := make(chan Request, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.core.Run(ctx, requests)

	reply := make(chan Response, 1)
	requests <- Request{
		Evt: &event.NativeDeposit{
			DepositID: uuid.New(),
			UserID:    h.ownerID,
			Amount:    amt("5000"),
			Sequence:  0,
			Timestamp: time.Unix(1000, 0),
		},
		Reply: reply,
	}
	if resp := <-reply; resp.Err != nil {
		t.Fatalf("deposit via bus error: %v", resp.Err)
	}

	var balance *big.Int
	done := make(chan Response, 1)
	requests <- Request{
		Query: func(v *View) { balance = v.NativeBalance(h.owner) },
		Reply: done,
	}
	<-done
	if balance.Cmp(amt("5000")) != 0 {
		t.Errorf("balance via query = %s, want 5000", balance)
	}
}

// ---------------------------------------------------------------------------
// Recovery replay
// ---------------------------------------------------------------------------

// logBackedChecker reports every key as present, the way the Postgres
// checker does for events read back from the event log.
type logBackedChecker struct{}

func (logBackedChecker) IsDuplicate(string, string) (bool, error) { return true, nil }

func TestReplayAppliesEventsAlreadyInLog(t *testing.T) {
	persist := make(chan CoreOutput, 1024)
	proj := make(chan CoreOutput, 1024)
	ownerID := uuid.New()
	owner := ledger.UserAccount(ownerID)
	c := NewDeterministicCore(0, DefaultConfig(), persist, proj, logBackedChecker{}, nil)

	deposit := &event.NativeDeposit{
		DepositID: uuid.New(),
		UserID:    ownerID,
		Amount:    amt("1000"),
		Sequence:  0,
		Timestamp: time.Unix(1000, 0),
	}

	// The live path sees a logged event as a duplicate and applies
	// nothing.
	res, err := c.ProcessEvent(deposit)
	if err != nil {
		t.Fatalf("ProcessEvent error: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("ProcessEvent duplicate = false, want true")
	}
	if got := c.native.BalanceOf(owner); got.Sign() != 0 {
		t.Fatalf("balance after duplicate = %s, want 0", got)
	}

	// The replay path must re-apply it regardless.
	res, err = c.ReplayEvent(deposit)
	if err != nil {
		t.Fatalf("ReplayEvent error: %v", err)
	}
	if res.Duplicate {
		t.Errorf("ReplayEvent duplicate = true, want false")
	}
	if got := c.native.BalanceOf(owner); got.Cmp(amt("1000")) != 0 {
		t.Errorf("balance after replay = %s, want 1000", got)
	}
	if got := c.GetSequence(); got != 1 {
		t.Errorf("sequence after replay = %d, want 1", got)
	}
	if got := c.NextSourceSequence(event.PartitionDeposits); got != 1 {
		t.Errorf("deposits partition counter = %d, want 1", got)
	}
}

func TestReplayReproducesStateHash(t *testing.T) {
	h := newHarness(t)
	h.quote(t, "300000000000", 1000)
	h.fund(t, "1000000000000000", 1001)
	open := &event.PositionDeposit{
		CommandID:  uuid.New(),
		Caller:     h.owner,
		Collateral: amt("1000000000000000"),
		Tier:       2,
		Sequence:   h.apiSeq(),
		Timestamp:  time.Unix(1002, 0),
	}
	if _, err := h.core.ProcessEvent(open); err != nil {
		t.Fatalf("deposit error: %v", err)
	}

	wantHash := h.core.GetStateHash()
	wantSeq := h.core.GetSequence()

	// Replay the same events into a fresh core whose DB checker claims
	// everything is already logged.
	replayed := NewDeterministicCore(0, DefaultConfig(),
		make(chan CoreOutput, 1024), make(chan CoreOutput, 1024),
		logBackedChecker{}, nil)
	log := []event.Event{
		&event.OracleQuoteUpdate{QuoteID: uuid.New(), Price: amt("300000000000"), Sequence: 0, Timestamp: time.Unix(1000, 0)},
		&event.NativeDeposit{DepositID: uuid.New(), UserID: h.ownerID, Amount: amt("1000000000000000"), Sequence: 0, Timestamp: time.Unix(1001, 0)},
		open,
	}
	for i, evt := range log {
		if _, err := replayed.ReplayEvent(evt); err != nil {
			t.Fatalf("replay event %d error: %v", i, err)
		}
	}

	if got := replayed.GetSequence(); got != wantSeq {
		t.Errorf("replayed sequence = %d, want %d", got, wantSeq)
	}
	if got := replayed.GetStateHash(); got != wantHash {
		t.Errorf("replayed state hash = %x, want %x", got, wantHash)
	}
	if got := replayed.native.BalanceOf(h.owner); got.Cmp(h.core.native.BalanceOf(h.owner)) != 0 {
		t.Errorf("replayed balance = %s, want %s", got, h.core.native.BalanceOf(h.owner))
	}
}
