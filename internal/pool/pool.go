// Package pool implements the constant-product venue that exchanges native
// units against the debt token. The pool does not hold its own reserve
// copies; reserves are simply the balances of the pool account in the two
// ledgers, so position-manager fees deepen liquidity the moment they land.
package pool

import (
	"errors"
	"math/big"

	"github.com/govm-net/StabuLink/internal/fixedpoint"
	"github.com/govm-net/StabuLink/internal/ledger"
	"github.com/govm-net/StabuLink/internal/token"
)

// ErrAmountOut is returned when a swap's computed output falls below the
// caller's minimum.
var ErrAmountOut = errors.New("amount out below minimum")

var (
	feeNum = big.NewInt(99)
	feeDen = big.NewInt(100)
)

// Pool routes swaps through the pool account and maintains a time-weighted
// price record. It is not safe for concurrent use; all mutation happens on
// the engine goroutine.
type Pool struct {
	account ledger.Account
	native  *ledger.NativeLedger
	tokens  *token.Ledger

	// Time-weighted price state. lastPrice is native per token at
	// 18-decimal precision, updated after every swap. The accumulator
	// integrates lastPrice over the time it was in force.
	initialized bool
	lastPrice   *big.Int
	lastUpdate  int64
	cumPrice    *big.Int
	elapsed     int64
}

// New creates a pool trading out of the given account.
func New(account ledger.Account, native *ledger.NativeLedger, tokens *token.Ledger) *Pool {
	return &Pool{
		account:   account,
		native:    native,
		tokens:    tokens,
		lastPrice: new(big.Int),
		cumPrice:  new(big.Int),
	}
}

// Account returns the pool's ledger account.
func (p *Pool) Account() ledger.Account {
	return p.account
}

// Reserves returns the current native and token reserves.
func (p *Pool) Reserves() (native, tokens *big.Int) {
	return p.native.BalanceOf(p.account), p.tokens.BalanceOf(p.account)
}

// quoteOut prices an input against reserves with the 1% input fee applied.
func quoteOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	inWithFee := fixedpoint.MulDiv(amountIn, feeNum, feeDen)
	den := new(big.Int).Add(reserveIn, inWithFee)
	if den.Sign() == 0 {
		return new(big.Int)
	}
	return fixedpoint.MulDiv(reserveOut, inWithFee, den)
}

// Sell swaps native units in for tokens out. The full input lands in the
// pool's native reserve; the fee shows up as output discount. Validation
// happens before any balance moves, so a failed sell changes nothing.
func (p *Pool) Sell(caller ledger.Account, amountIn, minOut *big.Int, now int64) (*big.Int, error) {
	if amountIn.Sign() <= 0 {
		return nil, ErrAmountOut
	}
	reserveNative, reserveToken := p.Reserves()
	out := quoteOut(amountIn, reserveNative, reserveToken)
	if out.Cmp(minOut) < 0 || out.Sign() == 0 {
		return nil, ErrAmountOut
	}
	if !p.native.CanDebit(caller, amountIn) {
		return nil, ledger.ErrInsufficientBalance
	}

	p.accrue(now)

	if err := p.native.Transfer(caller, p.account, amountIn); err != nil {
		return nil, err
	}
	if err := p.tokens.Transfer(p.account, caller, out); err != nil {
		return nil, err
	}
	p.markPrice()
	return out, nil
}

// Buy swaps tokens in for native units out. The caller must have approved
// the pool account for at least amountIn beforehand.
func (p *Pool) Buy(caller ledger.Account, amountIn, minOut *big.Int, now int64) (*big.Int, error) {
	if amountIn.Sign() <= 0 {
		return nil, ErrAmountOut
	}
	reserveNative, reserveToken := p.Reserves()
	out := quoteOut(amountIn, reserveToken, reserveNative)
	if out.Cmp(minOut) < 0 || out.Sign() == 0 {
		return nil, ErrAmountOut
	}
	if !p.tokens.CanTransferFrom(p.account, caller, amountIn) {
		if p.tokens.Allowance(caller, p.account).Cmp(amountIn) < 0 {
			return nil, token.ErrInsufficientAllowance
		}
		return nil, ledger.ErrInsufficientBalance
	}
	if !p.native.CanDebit(p.account, out) {
		return nil, ledger.ErrInsufficientBalance
	}

	p.accrue(now)

	if err := p.tokens.TransferFrom(p.account, caller, p.account, amountIn); err != nil {
		return nil, err
	}
	if err := p.native.Transfer(p.account, caller, out); err != nil {
		return nil, err
	}
	p.markPrice()
	return out, nil
}

// accrue folds the price in force since the previous swap into the
// accumulator. The first swap only anchors the clock.
func (p *Pool) accrue(now int64) {
	if !p.initialized {
		p.initialized = true
		p.lastUpdate = now
		return
	}
	dt := now - p.lastUpdate
	if dt <= 0 {
		return
	}
	p.cumPrice.Add(p.cumPrice, new(big.Int).Mul(p.lastPrice, big.NewInt(dt)))
	p.elapsed += dt
	p.lastUpdate = now
}

// markPrice records the post-swap marginal price.
func (p *Pool) markPrice() {
	reserveNative, reserveToken := p.Reserves()
	if reserveToken.Sign() == 0 {
		p.lastPrice.SetInt64(0)
		return
	}
	p.lastPrice = fixedpoint.MulDiv(reserveNative, fixedpoint.UnitScale, reserveToken)
}

// LastPrice returns the price recorded after the most recent swap, native
// per token at 18-decimal precision. Zero before the first swap.
func (p *Pool) LastPrice() *big.Int {
	return new(big.Int).Set(p.lastPrice)
}

// AveragePrice returns the lifetime time-weighted price. Zero until a
// second swap gives the integral a non-empty interval. Reading never
// mutates the accumulator.
func (p *Pool) AveragePrice() *big.Int {
	if p.elapsed == 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(p.cumPrice, big.NewInt(p.elapsed))
}

// Snapshot captures the pool's price state. Reserves live in the ledgers
// and are snapshotted there.
type Snapshot struct {
	Initialized bool     `json:"initialized"`
	LastPrice   *big.Int `json:"last_price"`
	LastUpdate  int64    `json:"last_update"`
	CumPrice    *big.Int `json:"cum_price"`
	Elapsed     int64    `json:"elapsed"`
}

// Snapshot returns the pool's price state.
func (p *Pool) Snapshot() Snapshot {
	return Snapshot{
		Initialized: p.initialized,
		LastPrice:   new(big.Int).Set(p.lastPrice),
		LastUpdate:  p.lastUpdate,
		CumPrice:    new(big.Int).Set(p.cumPrice),
		Elapsed:     p.elapsed,
	}
}

// Restore replaces the pool's price state with a snapshot.
func (p *Pool) Restore(snap Snapshot) {
	p.initialized = snap.Initialized
	p.lastPrice = new(big.Int).Set(snap.LastPrice)
	p.lastUpdate = snap.LastUpdate
	p.cumPrice = new(big.Int).Set(snap.CumPrice)
	p.elapsed = snap.Elapsed
}
