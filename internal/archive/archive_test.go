package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/model"
	"github.com/atmx/playmarket/internal/store"
)

type object struct {
	body        []byte
	contentType string
}

// memWriter keeps uploads in a map.
type memWriter struct {
	objects map[string]object
	fail    error
}

func (w *memWriter) Put(_ context.Context, key string, data io.Reader, contentType string) error {
	if w.fail != nil {
		return w.fail
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.objects == nil {
		w.objects = make(map[string]object)
	}
	w.objects[key] = object{body: b, contentType: contentType}
	return nil
}

func seed(t *testing.T, trades int) *store.MemoryStore {
	t.Helper()
	ms := store.NewMemoryStore()
	ctx := context.Background()
	if err := ms.CreateMarket(ctx, &model.Market{
		ID: "m1", Title: "Snow in April?", Status: model.StatusOpen, Outcome: model.OutcomeUnset,
		Pool: &model.Pool{YesReserve: decimal.NewFromInt(1000), NoReserve: decimal.NewFromInt(1000)},
	}); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < trades; i++ {
		tr := &model.Trade{
			ID:           string(rune('a' + i)),
			MarketID:     "m1",
			AccountID:    "alice",
			Outcome:      model.OutcomeYes,
			CollateralIn: decimal.NewFromInt(int64(10 * (i + 1))),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := ms.InTx(ctx, func(tx store.Tx) error { return tx.InsertTrade(ctx, tr) }); err != nil {
			t.Fatal(err)
		}
	}
	return ms
}

func TestExportMarket(t *testing.T) {
	ms := seed(t, 3)
	w := &memWriter{}
	man, err := NewExporter(w, ms, "exports").ExportMarket(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if man.Trades != 3 || man.TradesKey != "exports/m1/trades.jsonl" || man.Status != model.StatusOpen {
		t.Errorf("unexpected manifest %+v", man)
	}

	obj, ok := w.objects["exports/m1/trades.jsonl"]
	if !ok {
		t.Fatalf("trade log not uploaded, have %v", w.objects)
	}
	if obj.contentType != contentTypeJSONL {
		t.Errorf("unexpected content type %q", obj.contentType)
	}

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(obj.body))
	for sc.Scan() {
		var tr model.Trade
		if err := json.Unmarshal(sc.Bytes(), &tr); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		ids = append(ids, tr.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Errorf("trades should be in execution order, got %v", ids)
	}

	var stored Manifest
	if err := json.Unmarshal(w.objects["exports/m1/manifest.json"].body, &stored); err != nil {
		t.Fatalf("manifest not uploaded: %v", err)
	}
	if stored.MarketID != "m1" || stored.Trades != 3 {
		t.Errorf("unexpected stored manifest %+v", stored)
	}
}

func TestExportMarket_NoTrades(t *testing.T) {
	w := &memWriter{}
	man, err := NewExporter(w, seed(t, 0), "").ExportMarket(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if man.Trades != 0 || man.TradesKey != "m1/trades.jsonl" {
		t.Errorf("unexpected manifest %+v", man)
	}
	if obj := w.objects["m1/trades.jsonl"]; len(obj.body) != 0 {
		t.Errorf("expected an empty log, got %q", obj.body)
	}
}

func TestExportMarket_Errors(t *testing.T) {
	ms := seed(t, 1)
	if _, err := NewExporter(&memWriter{}, ms, "x").ExportMarket(context.Background(), "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	boom := errors.New("bucket gone")
	if _, err := NewExporter(&memWriter{fail: boom}, ms, "x").ExportMarket(context.Background(), "m1"); !errors.Is(err, boom) {
		t.Errorf("expected upload error, got %v", err)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := map[string]string{
		"minio.local:9000":        "https://minio.local:9000",
		"http://minio.local:9000": "http://minio.local:9000",
		"https://r2.example.com":  "https://r2.example.com",
	}
	for in, want := range tests {
		if got := normaliseEndpoint(in); got != want {
			t.Errorf("normaliseEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}
