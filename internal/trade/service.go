// Package trade executes buys against a market's pool and exposes markets,
// quotes, trades and accounts over HTTP.
//
// All monetary values are integer micros in shopspring/decimal. Request
// bodies carry amounts as coin strings ("12.5"); responses carry micros.
package trade

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/account"
	"github.com/atmx/playmarket/internal/fpmm"
	"github.com/atmx/playmarket/internal/micros"
	"github.com/atmx/playmarket/internal/model"
	"github.com/atmx/playmarket/internal/store"
)

const (
	defaultTradeLimit = 25
	maxTradeLimit     = 100
	maxBodyBytes      = 1 << 20
)

// MarketDefaults fill in fields a create-market request leaves out.
type MarketDefaults struct {
	Liquidity decimal.Decimal // micros
	FeeBps    int
}

// Service is the thin HTTP adapter over the trade engine and account
// service. Auth is not handled here.
type Service struct {
	engine   *Engine
	accounts *account.Service
	store    store.Store
	hub      *WSHub // optional
	defaults MarketDefaults
}

// NewService creates the HTTP adapter. Pass nil for hub if the live feed
// is not needed.
func NewService(engine *Engine, accounts *account.Service, st store.Store, hub *WSHub, defaults MarketDefaults) *Service {
	return &Service{engine: engine, accounts: accounts, store: st, hub: hub, defaults: defaults}
}

// Routes registers every endpoint on r, relative to the API prefix.
func (s *Service) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Get("/markets", s.ListMarkets)
	r.Post("/markets", s.CreateMarket)
	r.Get("/markets/{marketID}", s.GetMarket)
	r.Get("/markets/{marketID}/price", s.GetPrice)
	r.Get("/markets/{marketID}/trades", s.ListMarketTrades)
	r.Get("/markets/{marketID}/chart", s.GetChart)

	r.Post("/quote", s.Quote)
	r.Post("/trade", s.ExecuteTrade)

	r.Post("/accounts", s.CreateAccount)
	r.Get("/accounts/{accountID}", s.GetAccount)
	r.Get("/accounts/{accountID}/trades", s.ListAccountTrades)
}

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Liquidity   string `json:"liquidity,omitempty"` // coins; empty uses the default
	FeeBps      *int   `json:"fee_bps,omitempty"`
}

// TradeRequest is the JSON body for POST /trade.
type TradeRequest struct {
	Account    model.AccountRef `json:"account"`
	MarketID   string           `json:"market_id"`
	Outcome    model.Outcome    `json:"outcome"`
	Collateral string           `json:"collateral"` // coins
}

// QuoteRequest is the JSON body for POST /quote.
type QuoteRequest struct {
	MarketID   string        `json:"market_id"`
	Outcome    model.Outcome `json:"outcome"`
	Collateral string        `json:"collateral"` // coins
}

// CreateAccountRequest is the JSON body for POST /accounts.
type CreateAccountRequest struct {
	Kind        model.AccountKind `json:"kind"`
	DisplayName string            `json:"display_name"`
}

// MarketView is a market with its display prices.
type MarketView struct {
	model.Market
	PriceYes float64 `json:"price_yes"`
	PriceNo  float64 `json:"price_no"`
}

// PriceResponse is the body of GET /markets/{marketID}/price.
type PriceResponse struct {
	MarketID string  `json:"market_id"`
	Yes      float64 `json:"yes"`
	No       float64 `json:"no"`
}

func viewOf(m *model.Market) MarketView {
	yes, no := fpmm.MarketPrices(m)
	return MarketView{Market: *m, PriceYes: yes, PriceNo: no}
}

// --- HTTP Handlers ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if !decode(w, r, &req) {
		return
	}

	liquidity := s.defaults.Liquidity
	if req.Liquidity != "" {
		l, err := micros.ParseCoins(req.Liquidity)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		liquidity = l
	}
	feeBps := s.defaults.FeeBps
	if req.FeeBps != nil {
		feeBps = *req.FeeBps
	}

	m, err := s.engine.CreateMarket(r.Context(), MarketParams{
		Title:       req.Title,
		Description: req.Description,
		Liquidity:   liquidity,
		FeeBps:      feeBps,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(m))
}

// ListMarkets handles GET /api/v1/markets
// Optionally filtered by ?status=OPEN|RESOLVED.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	status := model.MarketStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && status != model.StatusOpen && status != model.StatusResolved {
		writeError(w, "status must be OPEN or RESOLVED", http.StatusBadRequest)
		return
	}

	markets, err := s.store.ListMarkets(r.Context(), status)
	if err != nil {
		writeErr(w, err)
		return
	}
	views := make([]MarketView, 0, len(markets))
	for i := range markets {
		views = append(views, viewOf(&markets[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(m))
}

// GetPrice handles GET /api/v1/markets/{marketID}/price
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	yes, no := fpmm.MarketPrices(m)
	writeJSON(w, http.StatusOK, PriceResponse{MarketID: m.ID, Yes: yes, No: no})
}

// ListMarketTrades handles GET /api/v1/markets/{marketID}/trades?limit=N
// Newest first.
func (s *Service) ListMarketTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	marketID := chi.URLParam(r, "marketID")
	if _, err := s.store.GetMarket(r.Context(), marketID); err != nil {
		writeErr(w, err)
		return
	}
	trades, err := s.store.ListTradesByMarket(r.Context(), marketID, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetChart handles GET /api/v1/markets/{marketID}/chart?interval=1d|1w|1m|all
// YES price and volume per time bucket, oldest first.
func (s *Service) GetChart(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.Chart(r.Context(), chi.URLParam(r, "marketID"), r.URL.Query().Get("interval"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListAccountTrades handles GET /api/v1/accounts/{accountID}/trades?limit=N
func (s *Service) ListAccountTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	accountID := chi.URLParam(r, "accountID")
	if _, err := s.accounts.Get(r.Context(), accountID); err != nil {
		writeErr(w, err)
		return
	}
	trades, err := s.store.ListTradesByAccount(r.Context(), accountID, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// Quote handles POST /api/v1/quote
// Prices a buy without executing it.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decode(w, r, &req) {
		return
	}
	collateral, err := micros.ParseCoins(req.Collateral)
	if err != nil {
		writeError(w, "collateral: "+err.Error(), http.StatusBadRequest)
		return
	}
	p, err := s.engine.Quote(r.Context(), req.MarketID, req.Outcome, collateral)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ExecuteTrade handles POST /api/v1/trade
// Executes against the FPMM pool and returns the committed receipt.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !decode(w, r, &req) {
		return
	}
	collateral, err := micros.ParseCoins(req.Collateral)
	if err != nil {
		writeError(w, "collateral: "+err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := s.engine.Execute(r.Context(), Request{
		Account:      req.Account,
		MarketID:     req.MarketID,
		Outcome:      req.Outcome,
		CollateralIn: collateral,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// CreateAccount handles POST /api/v1/accounts
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := s.accounts.Register(r.Context(), req.Kind, req.DisplayName)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetAccount handles GET /api/v1/accounts/{accountID}
// Returns the account with its positions.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	h, err := s.accounts.Holdings(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultTradeLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxTradeLimit {
		writeError(w, "limit must be between 1 and 100", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(err error) int {
	switch k := model.KindOf(err); {
	case errors.Is(k, model.ErrInvalidParameter), errors.Is(k, model.ErrDegenerateTrade):
		return http.StatusBadRequest
	case errors.Is(k, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(k, model.ErrInvalidState), errors.Is(k, model.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(k, model.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes a ledger error with its kind. Persistence details stay
// in the logs.
func writeErr(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kindLabel(err)})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
