// Package fpmm implements the fixed-product market maker (FPMM) that prices
// buys against a binary market's pool.
//
// Buying outcome S with net collateral n adds n to both reserves, then
// removes just enough of reserve S to restore the product k = yes * no:
//
//	T' = T + n
//	S' = ceil(k / T')
//	sharesOut = (S + n) - S'
//
// The ceiling keeps the post-trade product >= k, so rounding always favours
// the pool. Fees are taken on the gross input before the curve runs.
//
// All arithmetic is exact integer micros (shopspring/decimal over math/big).
// The only float64 values here are display prices, which are never fed back
// into pool state.
package fpmm

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/micros"
	"github.com/atmx/playmarket/internal/model"
)

// MaxFeeBps is the largest fee a pool may charge (100%).
const MaxFeeBps = micros.BpsDenominator

const opQuote = "fpmm.quote_buy"

// Quote is the side-effect-free result of pricing one buy.
type Quote struct {
	Outcome       model.Outcome   `json:"outcome"`
	CollateralIn  decimal.Decimal `json:"collateral_in"`
	Fee           decimal.Decimal `json:"fee"`
	NetCollateral decimal.Decimal `json:"net_collateral"`
	SharesOut     decimal.Decimal `json:"shares_out"`
	// Next carries the post-trade reserves. Collateral and Version are
	// copied from the input pool; persisting Next is the caller's call.
	Next model.Pool `json:"next_pool"`
}

// QuoteBuy prices buying outcome with collateralIn micros against pool.
func QuoteBuy(pool model.Pool, outcome model.Outcome, collateralIn decimal.Decimal) (*Quote, error) {
	if pool.FeeBps < 0 || pool.FeeBps > MaxFeeBps {
		return nil, &model.Error{Kind: model.ErrInvalidParameter, Op: opQuote,
			Msg: "fee bps must be between 0 and 10000"}
	}
	if !outcome.Valid() {
		return nil, &model.Error{Kind: model.ErrInvalidParameter, Op: opQuote,
			Msg: "outcome must be YES or NO"}
	}
	if !micros.IsWhole(pool.YesReserve) || !micros.IsWhole(pool.NoReserve) ||
		!pool.YesReserve.IsPositive() || !pool.NoReserve.IsPositive() {
		return nil, &model.Error{Kind: model.ErrInvalidState, Op: opQuote,
			Msg: "pool reserves must be positive whole micros"}
	}
	if err := micros.CheckNonNegative(collateralIn); err != nil {
		return nil, &model.Error{Kind: model.ErrInvalidParameter, Op: opQuote,
			Msg: "collateral must be a non-negative whole number of micros", Amount: collateralIn, Err: err}
	}

	fee, err := micros.MulBps(collateralIn, pool.FeeBps)
	if err != nil {
		return nil, &model.Error{Kind: model.ErrInvalidParameter, Op: opQuote, Err: err}
	}
	net := collateralIn.Sub(fee)

	k := pool.K()
	bought, other := pool.YesReserve, pool.NoReserve
	if outcome == model.OutcomeNo {
		bought, other = pool.NoReserve, pool.YesReserve
	}

	otherAfter := other.Add(net)
	boughtAfter, err := micros.CeilDiv(k, otherAfter)
	if err != nil {
		return nil, &model.Error{Kind: model.ErrInvalidState, Op: opQuote, Err: err}
	}
	sharesOut := bought.Add(net).Sub(boughtAfter)
	if !sharesOut.IsPositive() {
		return nil, &model.Error{Kind: model.ErrDegenerateTrade, Op: opQuote,
			Msg: "trade results in zero shares out", Amount: collateralIn}
	}

	next := pool
	if outcome == model.OutcomeYes {
		next.YesReserve, next.NoReserve = boughtAfter, otherAfter
	} else {
		next.YesReserve, next.NoReserve = otherAfter, boughtAfter
	}

	return &Quote{
		Outcome:       outcome,
		CollateralIn:  collateralIn,
		Fee:           fee,
		NetCollateral: net,
		SharesOut:     sharesOut,
		Next:          next,
	}, nil
}

// PriceYes returns the implied YES probability no / (yes + no).
// An empty pool reads as 0.5.
func PriceYes(pool model.Pool) float64 {
	denom := pool.YesReserve.Add(pool.NoReserve)
	if !denom.IsPositive() {
		return 0.5
	}
	return pool.NoReserve.InexactFloat64() / denom.InexactFloat64()
}

// PriceNo returns 1 - PriceYes.
func PriceNo(pool model.Pool) float64 {
	return 1 - PriceYes(pool)
}

// MarketPrices returns the display prices for a market. Resolved markets
// pin to 1/0 on the winning side; markets without a pool read 0.5/0.5.
func MarketPrices(m *model.Market) (yes, no float64) {
	if m.Status == model.StatusResolved {
		switch m.Outcome {
		case model.OutcomeYes:
			return 1, 0
		case model.OutcomeNo:
			return 0, 1
		}
	}
	if m.Pool == nil {
		return 0.5, 0.5
	}
	yes = PriceYes(*m.Pool)
	return yes, 1 - yes
}

// SeedPool builds the balanced opening pool for a new market.
func SeedPool(liquidity decimal.Decimal, feeBps int) (model.Pool, error) {
	if !micros.IsWhole(liquidity) || !liquidity.IsPositive() {
		return model.Pool{}, &model.Error{Kind: model.ErrInvalidParameter, Op: "fpmm.seed_pool",
			Msg: "liquidity must be a positive whole number of micros", Amount: liquidity}
	}
	if feeBps < 0 || feeBps > MaxFeeBps {
		return model.Pool{}, &model.Error{Kind: model.ErrInvalidParameter, Op: "fpmm.seed_pool",
			Msg: "fee bps must be between 0 and 10000"}
	}
	return model.Pool{
		YesReserve: liquidity,
		NoReserve:  liquidity,
		Collateral: decimal.Zero,
		FeeBps:     feeBps,
	}, nil
}
