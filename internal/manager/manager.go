// Package manager runs the collateral position lifecycle. Opening a
// position custodies native collateral, values it against the oracle and
// mints debt tokens; closing pays the collateral back less the fee;
// foreclosure routes a matured position's collateral and debt into the
// liquidity pool.
package manager

import (
	"errors"
	"math/big"
	"sort"

	"github.com/govm-net/StabuLink/internal/fixedpoint"
	"github.com/govm-net/StabuLink/internal/ledger"
	"github.com/govm-net/StabuLink/internal/oracle"
	"github.com/govm-net/StabuLink/internal/token"
)

var (
	// ErrInvalidTier is returned for a tier with no configured ratio.
	ErrInvalidTier = errors.New("invalid tier")

	// ErrPositionNotFound is returned for an unknown or already consumed
	// position id. The two cases are deliberately indistinguishable.
	ErrPositionNotFound = errors.New("position not found")

	// ErrNotMature is returned when foreclosure is attempted before the
	// maturity window has elapsed.
	ErrNotMature = errors.New("position not mature")
)

// Status tracks where a position is in its lifecycle.
type Status string

const (
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusLiquidated Status = "liquidated"
)

// Position is one collateral position. DebtIssued records the amount
// minted at open time; foreclosure credits exactly that amount to the
// pool regardless of the price at foreclosure.
type Position struct {
	ID         uint64         `json:"id"`
	Owner      ledger.Account `json:"owner"`
	Collateral *big.Int       `json:"collateral"`
	Tier       uint8          `json:"tier"`
	DebtIssued *big.Int       `json:"debt_issued"`
	OpenedAt   int64          `json:"opened_at"`
	Status     Status         `json:"status"`
}

func (p *Position) clone() *Position {
	cp := *p
	cp.Collateral = new(big.Int).Set(p.Collateral)
	cp.DebtIssued = new(big.Int).Set(p.DebtIssued)
	return &cp
}

// Config fixes the manager's economic parameters.
type Config struct {
	// TierRatios maps tier id to loan-to-value in basis points.
	TierRatios map[uint8]int64
	// FeeBps is the fee charged on deposit, withdraw and foreclosure
	// collateral flows, in basis points.
	FeeBps int64
	// MaturitySeconds is the age a position must reach before anyone may
	// foreclose it.
	MaturitySeconds int64
}

// DefaultConfig returns the production parameters: 50/75/90 percent tiers,
// a 1 percent fee and a 30 day maturity.
func DefaultConfig() Config {
	return Config{
		TierRatios:      map[uint8]int64{1: 5000, 2: 7500, 3: 9000},
		FeeBps:          100,
		MaturitySeconds: 30 * 24 * 3600,
	}
}

// Receipt reports the flows an operation produced, for journaling and
// read-model updates. Fields not touched by the operation are nil.
type Receipt struct {
	Position *Position
	// Value is the oracle valuation of the collateral at open time.
	Value *big.Int
	// Fee is the collateral fee leg.
	Fee *big.Int
	// Custodied is the collateral amount moved into custody on open.
	Custodied *big.Int
	// PoolCredit is the token amount minted to the pool on open.
	PoolCredit *big.Int
	// Payout is the collateral amount paid out on close or foreclosure.
	Payout *big.Int
}

// Manager owns the position arena. Position ids are assigned once and
// never reused; consumed positions stay in the arena so stale ids keep
// answering not-found forever. Not safe for concurrent use.
type Manager struct {
	cfg       Config
	custody   ledger.Account
	poolAcct  ledger.Account
	authority ledger.Account
	native    *ledger.NativeLedger
	tokens    *token.Ledger
	prices    oracle.Adapter

	nextID    uint64
	positions map[uint64]*Position
}

// New creates a manager over the shared ledgers.
func New(cfg Config, native *ledger.NativeLedger, tokens *token.Ledger, prices oracle.Adapter) *Manager {
	return &Manager{
		cfg:       cfg,
		custody:   ledger.AccountCustody,
		poolAcct:  ledger.AccountPool,
		authority: ledger.AccountAuthority,
		native:    native,
		tokens:    tokens,
		prices:    prices,
		nextID:    1,
		positions: make(map[uint64]*Position),
	}
}

// Deposit opens a position. Every check and every derived amount is
// computed before the first balance moves, so a failure at any step
// leaves all ledgers untouched.
func (m *Manager) Deposit(owner ledger.Account, collateral *big.Int, tier uint8, now int64) (*Receipt, error) {
	ratioBps, ok := m.cfg.TierRatios[tier]
	if !ok {
		return nil, ErrInvalidTier
	}
	if collateral.Sign() <= 0 {
		return nil, fixedpoint.ErrNegative
	}
	if !m.native.CanDebit(owner, collateral) {
		return nil, ledger.ErrInsufficientBalance
	}
	quote, err := m.prices.Quote(now)
	if err != nil {
		return nil, err
	}

	value := fixedpoint.MulDiv(collateral, quote.Price, fixedpoint.PriceScale)
	debt := fixedpoint.Fraction(value, ratioBps, 10000)
	fee := fixedpoint.Fraction(collateral, m.cfg.FeeBps, 10000)
	poolCredit := fixedpoint.Fraction(value, m.cfg.FeeBps, 10000)
	custodied := new(big.Int).Sub(collateral, fee)

	if err := m.native.Transfer(owner, m.custody, custodied); err != nil {
		return nil, err
	}
	if err := m.native.Transfer(owner, m.poolAcct, fee); err != nil {
		return nil, err
	}
	if err := m.tokens.Mint(m.authority, owner, debt); err != nil {
		return nil, err
	}
	if err := m.tokens.Mint(m.authority, m.poolAcct, poolCredit); err != nil {
		return nil, err
	}

	pos := &Position{
		ID:         m.nextID,
		Owner:      owner,
		Collateral: new(big.Int).Set(collateral),
		Tier:       tier,
		DebtIssued: debt,
		OpenedAt:   now,
		Status:     StatusOpen,
	}
	m.positions[pos.ID] = pos
	m.nextID++
	return &Receipt{
		Position:   pos.clone(),
		Value:      value,
		Fee:        fee,
		Custodied:  custodied,
		PoolCredit: poolCredit,
	}, nil
}

// Withdraw closes an open position, returning the collateral less the fee
// to its owner. Only the owner may withdraw; a consumed id answers
// not-found like an id that never existed.
func (m *Manager) Withdraw(caller ledger.Account, id uint64) (*Receipt, error) {
	pos, ok := m.positions[id]
	if !ok || pos.Status != StatusOpen {
		return nil, ErrPositionNotFound
	}
	if caller != pos.Owner {
		return nil, token.ErrUnauthorized
	}

	fee := fixedpoint.Fraction(pos.Collateral, m.cfg.FeeBps, 10000)
	payout := new(big.Int).Sub(pos.Collateral, fee)
	// The fee leg of the collateral stays in custody; deposit already
	// routed its own fee to the pool.
	if err := m.native.Transfer(m.custody, pos.Owner, payout); err != nil {
		return nil, err
	}
	pos.Status = StatusClosed
	return &Receipt{Position: pos.clone(), Fee: fee, Payout: payout}, nil
}

// Liquidate forecloses a matured open position. Any caller may trigger
// it. The custodied collateral less the fee moves to the pool's native
// reserve and the originally issued debt is minted to the pool's token
// reserve.
func (m *Manager) Liquidate(caller ledger.Account, id uint64, now int64) (*Receipt, error) {
	pos, ok := m.positions[id]
	if !ok || pos.Status != StatusOpen {
		return nil, ErrPositionNotFound
	}
	if now-pos.OpenedAt < m.cfg.MaturitySeconds {
		return nil, ErrNotMature
	}

	fee := fixedpoint.Fraction(pos.Collateral, m.cfg.FeeBps, 10000)
	payout := new(big.Int).Sub(pos.Collateral, fee)
	if err := m.native.Transfer(m.custody, m.poolAcct, payout); err != nil {
		return nil, err
	}
	if err := m.tokens.Mint(m.authority, m.poolAcct, pos.DebtIssued); err != nil {
		return nil, err
	}
	pos.Status = StatusLiquidated
	return &Receipt{Position: pos.clone(), Fee: fee, Payout: payout}, nil
}

// Get returns a copy of the position, open or consumed.
func (m *Manager) Get(id uint64) (*Position, error) {
	pos, ok := m.positions[id]
	if !ok {
		return nil, ErrPositionNotFound
	}
	return pos.clone(), nil
}

// ByOwner returns copies of all positions owned by the account, ordered
// by id.
func (m *Manager) ByOwner(owner ledger.Account) []*Position {
	var out []*Position
	for _, pos := range m.positions {
		if pos.Owner == owner {
			out = append(out, pos.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenCount returns the number of open positions.
func (m *Manager) OpenCount() int {
	n := 0
	for _, pos := range m.positions {
		if pos.Status == StatusOpen {
			n++
		}
	}
	return n
}

// Snapshot captures the position arena.
type Snapshot struct {
	NextID    uint64      `json:"next_id"`
	Positions []*Position `json:"positions"`
}

// Snapshot returns the arena in id order.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{NextID: m.nextID}
	for _, pos := range m.positions {
		snap.Positions = append(snap.Positions, pos.clone())
	}
	sort.Slice(snap.Positions, func(i, j int) bool { return snap.Positions[i].ID < snap.Positions[j].ID })
	return snap
}

// Restore replaces the arena with a snapshot.
func (m *Manager) Restore(snap Snapshot) {
	m.nextID = snap.NextID
	m.positions = make(map[uint64]*Position, len(snap.Positions))
	for _, pos := range snap.Positions {
		m.positions[pos.ID] = pos.clone()
	}
}
