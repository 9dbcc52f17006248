package trade

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/fpmm"
	"github.com/atmx/playmarket/internal/model"
)

// ChartInterval is a chart time window and the bucket width used inside it.
type ChartInterval struct {
	Name   string
	Window time.Duration // zero means since the market opened
	Bucket time.Duration
}

const day = 24 * time.Hour

var chartIntervals = map[string]ChartInterval{
	"1d":  {Name: "1d", Window: day, Bucket: time.Hour},
	"1w":  {Name: "1w", Window: 7 * day, Bucket: 6 * time.Hour},
	"1m":  {Name: "1m", Window: 30 * day, Bucket: day},
	"all": {Name: "all", Bucket: day},
}

// DefaultChartInterval is used when a caller names none.
const DefaultChartInterval = "1d"

// ChartPoint is one bucket of price history. Timestamp is the bucket start
// in unix seconds; PriceYes is the mean post-trade YES price of the
// bucket's trades; Volume is the collateral they paid in, in micros.
type ChartPoint struct {
	Timestamp int64           `json:"timestamp"`
	PriceYes  float64         `json:"price_yes"`
	Volume    decimal.Decimal `json:"volume"`
	Trades    int             `json:"trades"`
}

// Chart is a market's YES price history over one interval.
type Chart struct {
	MarketID string       `json:"market_id"`
	Interval string       `json:"interval"`
	Points   []ChartPoint `json:"points"`
}

// Chart builds the price history of marketID from its trade log.
func (e *Engine) Chart(ctx context.Context, marketID, interval string) (*Chart, error) {
	const op = "trade.chart"
	if interval == "" {
		interval = DefaultChartInterval
	}
	iv, ok := chartIntervals[interval]
	if !ok {
		return nil, &model.Error{Kind: model.ErrInvalidParameter, Op: op, MarketID: marketID,
			Msg: "interval must be one of 1d, 1w, 1m, all"}
	}
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, model.Wrap(err, op, marketID, "")
	}
	trades, err := e.store.ListTradesByMarket(ctx, marketID, 0)
	if err != nil {
		return nil, model.Wrap(err, op, marketID, "")
	}
	return buildChart(m, trades, iv, time.Now().UTC()), nil
}

// buildChart buckets the trades that fall inside iv's window ending at now.
// Without any, the chart is a single point at the pool's current price.
func buildChart(m *model.Market, trades []model.Trade, iv ChartInterval, now time.Time) *Chart {
	start := m.CreatedAt
	if iv.Window > 0 {
		if s := now.Add(-iv.Window); s.After(start) {
			start = s
		}
	}

	inWindow := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if !t.CreatedAt.Before(start) && !t.CreatedAt.After(now) {
			inWindow = append(inWindow, t)
		}
	}

	points := BucketTrades(inWindow, iv.Bucket)
	if len(points) == 0 && m.Pool != nil {
		points = []ChartPoint{{Timestamp: start.Unix(), PriceYes: fpmm.PriceYes(*m.Pool), Volume: decimal.Zero}}
	}
	if points == nil {
		points = []ChartPoint{}
	}
	return &Chart{MarketID: m.ID, Interval: iv.Name, Points: points}
}

// BucketTrades groups trades into bucket-aligned windows and returns one
// point per non-empty bucket, oldest first. Each trade is priced from its
// post-trade pool snapshot. Input order does not matter.
func BucketTrades(trades []model.Trade, bucket time.Duration) []ChartPoint {
	secs := int64(bucket / time.Second)
	if secs <= 0 || len(trades) == 0 {
		return nil
	}

	type acc struct {
		priceSum float64
		volume   decimal.Decimal
		n        int
	}
	buckets := make(map[int64]*acc)
	for _, t := range trades {
		ts := t.CreatedAt.Unix()
		key := ts - ts%secs
		if ts < 0 && ts%secs != 0 {
			key -= secs
		}
		b, ok := buckets[key]
		if !ok {
			b = &acc{volume: decimal.Zero}
			buckets[key] = b
		}
		b.priceSum += fpmm.PriceYes(model.Pool{YesReserve: t.PoolYes, NoReserve: t.PoolNo})
		b.volume = b.volume.Add(t.CollateralIn)
		b.n++
	}

	points := make([]ChartPoint, 0, len(buckets))
	for key, b := range buckets {
		points = append(points, ChartPoint{
			Timestamp: key,
			PriceYes:  b.priceSum / float64(b.n),
			Volume:    b.volume,
			Trades:    b.n,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points
}
