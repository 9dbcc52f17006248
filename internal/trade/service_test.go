package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/account"
	"github.com/atmx/playmarket/internal/micros"
	"github.com/atmx/playmarket/internal/model"
	"github.com/atmx/playmarket/internal/store"
	"github.com/atmx/playmarket/internal/trade"
)

// newTestEnv creates a Service over an in-memory store, mounted on a chi
// router the way the server does it.
func newTestEnv(t *testing.T) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	eng := trade.NewEngine(ms, nil, nil, trade.Config{})
	accounts := account.NewService(ms, micros.FromCoins(100), 3)
	svc := trade.NewService(eng, accounts, ms, nil, trade.MarketDefaults{
		Liquidity: micros.FromCoins(1000),
		FeeBps:    100,
	})

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return ms, r
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func createMarket(t *testing.T, router chi.Router) trade.MarketView {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/markets", trade.CreateMarketRequest{Title: "Rain in Lisbon on Friday?"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decodeBody[trade.MarketView](t, w)
}

func createAccount(t *testing.T, router chi.Router, kind model.AccountKind) model.Account {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/accounts", trade.CreateAccountRequest{Kind: kind, DisplayName: "alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decodeBody[model.Account](t, w)
}

// --- Markets ---

func TestCreateMarket_Defaults(t *testing.T) {
	_, router := newTestEnv(t)
	m := createMarket(t, router)

	if m.ID == "" || m.Status != model.StatusOpen {
		t.Errorf("unexpected market %+v", m)
	}
	if m.Pool == nil || !m.Pool.YesReserve.Equal(micros.FromCoins(1000)) || m.Pool.FeeBps != 100 {
		t.Errorf("expected default pool, got %+v", m.Pool)
	}
	if m.PriceYes != 0.5 || m.PriceNo != 0.5 {
		t.Errorf("new market should price 0.5/0.5, got %f/%f", m.PriceYes, m.PriceNo)
	}
}

func TestCreateMarket_Invalid(t *testing.T) {
	_, router := newTestEnv(t)
	fee := 20_000
	cases := []trade.CreateMarketRequest{
		{Title: ""},
		{Title: "x", Liquidity: "abc"},
		{Title: "x", Liquidity: "0.0000001"},
		{Title: "x", FeeBps: &fee},
	}
	for _, c := range cases {
		if w := do(t, router, "POST", "/api/v1/markets", c); w.Code != http.StatusBadRequest {
			t.Errorf("%+v: expected 400, got %d: %s", c, w.Code, w.Body.String())
		}
	}
}

func TestListMarkets_FilterByStatus(t *testing.T) {
	ms, router := newTestEnv(t)
	open := createMarket(t, router)
	resolved := createMarket(t, router)
	ctx := context.Background()
	if err := ms.InTx(ctx, func(tx store.Tx) error {
		return tx.ResolveMarket(ctx, resolved.ID, model.OutcomeNo, resolved.CreatedAt)
	}); err != nil {
		t.Fatal(err)
	}

	all := decodeBody[[]trade.MarketView](t, do(t, router, "GET", "/api/v1/markets", nil))
	if len(all) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(all))
	}

	w := do(t, router, "GET", "/api/v1/markets?status=resolved", nil)
	got := decodeBody[[]trade.MarketView](t, w)
	if len(got) != 1 || got[0].ID != resolved.ID {
		t.Fatalf("expected only the resolved market, got %+v", got)
	}
	if got[0].PriceYes != 0 || got[0].PriceNo != 1 {
		t.Errorf("resolved NO market should price 0/1, got %f/%f", got[0].PriceYes, got[0].PriceNo)
	}

	got = decodeBody[[]trade.MarketView](t, do(t, router, "GET", "/api/v1/markets?status=OPEN", nil))
	if len(got) != 1 || got[0].ID != open.ID {
		t.Errorf("expected only the open market, got %+v", got)
	}

	if w := do(t, router, "GET", "/api/v1/markets?status=closed", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestGetMarket_NotFound(t *testing.T) {
	_, router := newTestEnv(t)
	for _, path := range []string{"/api/v1/markets/nope", "/api/v1/markets/nope/price", "/api/v1/markets/nope/trades", "/api/v1/markets/nope/chart"} {
		w := do(t, router, "GET", path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
		if body := decodeBody[map[string]string](t, w); body["kind"] != "not_found" {
			t.Errorf("%s: expected kind not_found, got %v", path, body)
		}
	}
}

// --- Trading ---

func TestExecuteTrade_BuyYes(t *testing.T) {
	_, router := newTestEnv(t)
	m := createMarket(t, router)
	a := createAccount(t, router, model.KindUser)

	w := do(t, router, "POST", "/api/v1/trade", trade.TradeRequest{
		Account:    model.UserRef(a.ID),
		MarketID:   m.ID,
		Outcome:    model.OutcomeYes,
		Collateral: "10",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	r := decodeBody[trade.Receipt](t, w)
	if r.TradeID == "" {
		t.Error("expected non-empty trade_id")
	}
	if !r.CollateralIn.Equal(micros.FromCoins(10)) || !r.Fee.Equal(decimal.NewFromInt(100_000)) {
		t.Errorf("unexpected collateral/fee %s/%s", r.CollateralIn, r.Fee)
	}
	if !r.Balance.Equal(micros.FromCoins(90)) {
		t.Errorf("expected 90 coins left, got %s", r.Balance)
	}
	if !r.SharesOut.IsPositive() || !r.Position.YesShares.Equal(r.SharesOut) {
		t.Errorf("unexpected shares %s / position %+v", r.SharesOut, r.Position)
	}

	price := decodeBody[trade.PriceResponse](t, do(t, router, "GET", "/api/v1/markets/"+m.ID+"/price", nil))
	if price.Yes <= 0.5 || price.Yes+price.No != 1 {
		t.Errorf("unexpected price after YES buy: %+v", price)
	}

	trades := decodeBody[[]model.Trade](t, do(t, router, "GET", "/api/v1/markets/"+m.ID+"/trades", nil))
	if len(trades) != 1 || trades[0].ID != r.TradeID {
		t.Errorf("expected the trade in the market log, got %+v", trades)
	}
	mine := decodeBody[[]model.Trade](t, do(t, router, "GET", "/api/v1/accounts/"+a.ID+"/trades?limit=5", nil))
	if len(mine) != 1 {
		t.Errorf("expected the trade in the account log, got %+v", mine)
	}
}

func TestExecuteTrade_Errors(t *testing.T) {
	ms, router := newTestEnv(t)
	m := createMarket(t, router)
	a := createAccount(t, router, model.KindUser)

	resolved := createMarket(t, router)
	ctx := context.Background()
	if err := ms.InTx(ctx, func(tx store.Tx) error {
		return tx.ResolveMarket(ctx, resolved.ID, model.OutcomeYes, resolved.CreatedAt)
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  trade.TradeRequest
		want int
	}{
		{"bad collateral", trade.TradeRequest{Account: model.UserRef(a.ID), MarketID: m.ID, Outcome: model.OutcomeYes, Collateral: "ten"}, http.StatusBadRequest},
		{"bad outcome", trade.TradeRequest{Account: model.UserRef(a.ID), MarketID: m.ID, Outcome: "MAYBE", Collateral: "1"}, http.StatusBadRequest},
		{"zero collateral", trade.TradeRequest{Account: model.UserRef(a.ID), MarketID: m.ID, Outcome: model.OutcomeYes, Collateral: "0"}, http.StatusBadRequest},
		{"unknown market", trade.TradeRequest{Account: model.UserRef(a.ID), MarketID: "nope", Outcome: model.OutcomeYes, Collateral: "1"}, http.StatusNotFound},
		{"agent ref to a user", trade.TradeRequest{Account: model.AgentRef(a.ID), MarketID: m.ID, Outcome: model.OutcomeYes, Collateral: "1"}, http.StatusNotFound},
		{"insufficient funds", trade.TradeRequest{Account: model.UserRef(a.ID), MarketID: m.ID, Outcome: model.OutcomeYes, Collateral: "101"}, http.StatusConflict},
		{"resolved market", trade.TradeRequest{Account: model.UserRef(a.ID), MarketID: resolved.ID, Outcome: model.OutcomeYes, Collateral: "1"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/trade", tt.req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	got, _ := ms.GetAccount(ctx, a.ID)
	if !got.Balance.Equal(micros.FromCoins(100)) {
		t.Errorf("rejected trades must not move money, balance %s", got.Balance)
	}
}

func TestExecuteTrade_RejectsUnknownFields(t *testing.T) {
	_, router := newTestEnv(t)
	w := do(t, router, "POST", "/api/v1/trade", map[string]any{"user_id": "x", "quantity": 5})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestQuote(t *testing.T) {
	_, router := newTestEnv(t)
	m := createMarket(t, router)

	w := do(t, router, "POST", "/api/v1/quote", trade.QuoteRequest{MarketID: m.ID, Outcome: model.OutcomeNo, Collateral: "25"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	p := decodeBody[trade.Preview](t, w)
	if p.PriceNoBefore != 0.5 || p.PriceNoAfter <= 0.5 {
		t.Errorf("unexpected prices %+v", p)
	}
	if !p.Fee.Add(p.NetCollateral).Equal(micros.FromCoins(25)) {
		t.Errorf("fee + net should equal collateral, got %s + %s", p.Fee, p.NetCollateral)
	}

	view := decodeBody[trade.MarketView](t, do(t, router, "GET", "/api/v1/markets/"+m.ID, nil))
	if view.Pool.Version != 0 {
		t.Errorf("quote must not change the pool, version %d", view.Pool.Version)
	}
}

// --- Accounts ---

func TestAccounts(t *testing.T) {
	_, router := newTestEnv(t)
	m := createMarket(t, router)
	a := createAccount(t, router, model.KindAgent)
	if a.Kind != model.KindAgent || !a.Balance.Equal(micros.FromCoins(100)) {
		t.Errorf("unexpected account %+v", a)
	}

	do(t, router, "POST", "/api/v1/trade", trade.TradeRequest{
		Account: model.AgentRef(a.ID), MarketID: m.ID, Outcome: model.OutcomeNo, Collateral: "5",
	})

	w := do(t, router, "GET", "/api/v1/accounts/"+a.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	h := decodeBody[account.Holdings](t, w)
	if !h.Account.Balance.Equal(micros.FromCoins(95)) {
		t.Errorf("expected 95 coins, got %s", h.Account.Balance)
	}
	if len(h.Positions) != 1 || !h.Positions[0].NoShares.IsPositive() {
		t.Errorf("expected one NO position, got %+v", h.Positions)
	}

	if w := do(t, router, "GET", "/api/v1/accounts/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := do(t, router, "POST", "/api/v1/accounts", trade.CreateAccountRequest{Kind: "BOT", DisplayName: "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestListTrades_Limit(t *testing.T) {
	_, router := newTestEnv(t)
	m := createMarket(t, router)
	for _, q := range []string{"?limit=0", "?limit=101", "?limit=x"} {
		if w := do(t, router, "GET", "/api/v1/markets/"+m.ID+"/trades"+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
	w := do(t, router, "GET", "/api/v1/markets/"+m.ID+"/trades", nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]\n" {
		t.Errorf("expected empty list, got %d %q", w.Code, w.Body.String())
	}
}

func TestGetChart(t *testing.T) {
	_, router := newTestEnv(t)
	m := createMarket(t, router)
	a := createAccount(t, router, model.KindUser)

	c := decodeBody[trade.Chart](t, do(t, router, "GET", "/api/v1/markets/"+m.ID+"/chart", nil))
	if c.Interval != "1d" || len(c.Points) != 1 || c.Points[0].PriceYes != 0.5 || c.Points[0].Trades != 0 {
		t.Errorf("expected a single opening-price point, got %+v", c)
	}

	for _, amount := range []string{"10", "20"} {
		w := do(t, router, "POST", "/api/v1/trade", trade.TradeRequest{
			Account: model.UserRef(a.ID), MarketID: m.ID, Outcome: model.OutcomeYes, Collateral: amount,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	}

	w := do(t, router, "GET", "/api/v1/markets/"+m.ID+"/chart?interval=1w", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	c = decodeBody[trade.Chart](t, w)
	trades, volume := 0, decimal.Zero
	for _, p := range c.Points {
		trades += p.Trades
		volume = volume.Add(p.Volume)
	}
	if c.Interval != "1w" || trades != 2 || !volume.Equal(micros.FromCoins(30)) {
		t.Errorf("expected 2 trades worth 30 coins, got %+v", c)
	}

	if w := do(t, router, "GET", "/api/v1/markets/"+m.ID+"/chart?interval=1y", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown interval, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{model.ErrInvalidParameter, http.StatusBadRequest},
		{model.ErrDegenerateTrade, http.StatusBadRequest},
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrInvalidState, http.StatusConflict},
		{model.ErrInsufficientFunds, http.StatusConflict},
		{model.ErrConcurrencyConflict, http.StatusServiceUnavailable},
		{model.ErrPersistence, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := trade.StatusFor(&model.Error{Kind: tt.kind}); got != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.kind, tt.want, got)
		}
	}
}
