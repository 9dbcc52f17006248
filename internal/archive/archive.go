// Package archive exports a market's append-only trade log as JSON lines
// to object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"time"

	"github.com/atmx/playmarket/internal/model"
)

const contentTypeJSONL = "application/x-ndjson"

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}

// TradeSource is the part of the store the exporter reads.
type TradeSource interface {
	GetMarket(ctx context.Context, id string) (*model.Market, error)
	ListTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.Trade, error)
}

// Manifest describes one export. It is written next to the trade log.
type Manifest struct {
	MarketID   string             `json:"market_id"`
	Title      string             `json:"title"`
	Status     model.MarketStatus `json:"status"`
	Outcome    model.Outcome      `json:"outcome"`
	Trades     int                `json:"trades"`
	TradesKey  string             `json:"trades_key"`
	ExportedAt time.Time          `json:"exported_at"`
}

// Exporter writes trade logs under a key prefix.
type Exporter struct {
	writer BlobWriter
	src    TradeSource
	prefix string
}

// NewExporter creates an Exporter. Keys are <prefix>/<marketID>/trades.jsonl
// and <prefix>/<marketID>/manifest.json.
func NewExporter(w BlobWriter, src TradeSource, prefix string) *Exporter {
	return &Exporter{writer: w, src: src, prefix: prefix}
}

// ExportMarket uploads every trade of marketID in execution order, then
// the manifest. A market with no trades still gets an empty log so the
// manifest always points at an object.
func (e *Exporter) ExportMarket(ctx context.Context, marketID string) (*Manifest, error) {
	m, err := e.src.GetMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("archive: load market %s: %w", marketID, err)
	}
	trades, err := e.src.ListTradesByMarket(ctx, marketID, 0)
	if err != nil {
		return nil, fmt.Errorf("archive: list trades %s: %w", marketID, err)
	}
	// the store lists newest first
	slices.Reverse(trades)

	buf, err := marshalJSONL(trades)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal trades: %w", err)
	}

	dir := path.Join(e.prefix, marketID)
	tradesKey := path.Join(dir, "trades.jsonl")
	if err := e.writer.Put(ctx, tradesKey, bytes.NewReader(buf), contentTypeJSONL); err != nil {
		return nil, fmt.Errorf("archive: upload %s: %w", tradesKey, err)
	}

	man := &Manifest{
		MarketID:   m.ID,
		Title:      m.Title,
		Status:     m.Status,
		Outcome:    m.Outcome,
		Trades:     len(trades),
		TradesKey:  tradesKey,
		ExportedAt: time.Now().UTC(),
	}
	body, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: marshal manifest: %w", err)
	}
	manifestKey := path.Join(dir, "manifest.json")
	if err := e.writer.Put(ctx, manifestKey, bytes.NewReader(body), "application/json"); err != nil {
		return nil, fmt.Errorf("archive: upload %s: %w", manifestKey, err)
	}

	slog.Info("trade log archived", "market", marketID, "trades", len(trades), "key", tradesKey)
	return man, nil
}

// marshalJSONL encodes each element as one JSON line.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
