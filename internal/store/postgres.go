package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/playmarket/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All amounts are stored as NUMERIC(40,0) micros and read back as ::TEXT
// so no precision is lost in the driver.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// RunMigrations applies the embedded SQL files in lexicographic order and
// records each one in schema_migrations.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("postgres: create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)",
			entry.Name(),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("postgres: check migration %s: %w", entry.Name(), err)
		}
		if exists {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", entry.Name(), err)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("postgres: begin tx for %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: exec migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (filename) VALUES ($1)",
			entry.Name(),
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: record migration %s: %w", entry.Name(), err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("postgres: commit migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr("postgres: begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr("postgres: commit", err)
	}
	committed = true
	return nil
}

// --- Accounts ---

const accountCols = `id, kind, owner_id, display_name, balance::TEXT, created_at`

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, kind, owner_id, display_name, balance, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		a.ID, a.Kind, nullable(a.OwnerID), a.DisplayName, a.Balance.String(), a.CreatedAt,
	)
	return mapErr("postgres: create account "+a.ID, err)
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("store.get_account", "account", id)
	}
	if err != nil {
		return nil, mapErr("postgres: get account "+id, err)
	}
	return a, nil
}

// --- Markets ---

const marketSelect = `SELECT m.id, m.title, m.description, m.status, m.outcome, m.created_at, m.resolved_at,
	        p.yes_reserve::TEXT, p.no_reserve::TEXT, p.collateral::TEXT, p.fee_bps, p.version
	 FROM markets m LEFT JOIN pools p ON p.market_id = m.id`

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	return s.InTx(ctx, func(t Tx) error {
		tx := t.(*pgTx).tx
		if _, err := tx.Exec(ctx,
			`INSERT INTO markets (id, title, description, status, outcome, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.Title, m.Description, m.Status, m.Outcome, m.CreatedAt,
		); err != nil {
			return mapErr("postgres: create market "+m.ID, err)
		}
		if m.Pool == nil {
			return nil
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO pools (market_id, yes_reserve, no_reserve, collateral, fee_bps, version)
			 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5, $6)`,
			m.ID, m.Pool.YesReserve.String(), m.Pool.NoReserve.String(),
			m.Pool.Collateral.String(), m.Pool.FeeBps, m.Pool.Version,
		)
		return mapErr("postgres: create pool "+m.ID, err)
	})
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, marketSelect+` WHERE m.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("store.get_market", "market", id)
	}
	if err != nil {
		return nil, mapErr("postgres: get market "+id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context, status model.MarketStatus) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		marketSelect+` WHERE ($1 = '' OR m.status = $1) ORDER BY m.created_at DESC, m.id`, string(status))
	if err != nil {
		return nil, mapErr("postgres: list markets", err)
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, mapErr("postgres: scan market", err)
		}
		markets = append(markets, *m)
	}
	return markets, mapErr("postgres: list markets", rows.Err())
}

// --- Positions ---

const positionCols = `account_id, market_id, yes_shares::TEXT, no_shares::TEXT, updated_at`

func (s *PostgresStore) GetPosition(ctx context.Context, accountID, marketID string) (*model.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE account_id = $1 AND market_id = $2`,
		accountID, marketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.Position{AccountID: accountID, MarketID: marketID}, nil
	}
	if err != nil {
		return nil, mapErr("postgres: get position", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPositionsByAccount(ctx context.Context, accountID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE account_id = $1 ORDER BY market_id`, accountID)
	if err != nil {
		return nil, mapErr("postgres: list positions", err)
	}
	return scanPositions(rows)
}

// --- Trades ---

const tradeCols = `id, market_id, account_id, side,
	collateral_in::TEXT, fee::TEXT, shares_out::TEXT,
	pool_yes::TEXT, pool_no::TEXT, pool_collateral::TEXT, created_at`

func (s *PostgresStore) ListTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeCols+` FROM trades WHERE market_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		marketID, limitArg(limit))
	if err != nil {
		return nil, mapErr("postgres: list trades by market", err)
	}
	return scanTrades(rows)
}

func (s *PostgresStore) ListTradesByAccount(ctx context.Context, accountID string, limit int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeCols+` FROM trades WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		accountID, limitArg(limit))
	if err != nil {
		return nil, mapErr("postgres: list trades by account", err)
	}
	return scanTrades(rows)
}

func (s *PostgresStore) Treasury(ctx context.Context) (decimal.Decimal, error) {
	var bal string
	err := s.pool.QueryRow(ctx, `SELECT balance::TEXT FROM treasury WHERE id = $1`, HouseAccountID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, mapErr("postgres: treasury", err)
	}
	return parseNumeric(bal)
}

// --- Transaction ---

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) AccountForUpdate(ctx context.Context, id string) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("store.account_for_update", "account", id)
	}
	if err != nil {
		return nil, mapErr("postgres: lock account "+id, err)
	}
	return a, nil
}

func (t *pgTx) DebitAccount(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount("store.debit_account", amount); err != nil {
		return decimal.Zero, err
	}
	var bal string
	err := t.tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance - $2::NUMERIC
		 WHERE id = $1 AND balance >= $2::NUMERIC
		 RETURNING balance::TEXT`, id, amount.String()).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := t.accountExists(ctx, "store.debit_account", id); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, &model.Error{Kind: model.ErrInsufficientFunds, Op: "store.debit_account",
			AccountID: id, Amount: amount, Msg: "insufficient balance"}
	}
	if err != nil {
		return decimal.Zero, mapErr("postgres: debit account "+id, err)
	}
	return parseNumeric(bal)
}

func (t *pgTx) CreditAccount(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount("store.credit_account", amount); err != nil {
		return decimal.Zero, err
	}
	var bal string
	err := t.tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance + $2::NUMERIC WHERE id = $1 RETURNING balance::TEXT`,
		id, amount.String()).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, notFound("store.credit_account", "account", id)
	}
	if err != nil {
		return decimal.Zero, mapErr("postgres: credit account "+id, err)
	}
	return parseNumeric(bal)
}

func (t *pgTx) SetAccountOwner(ctx context.Context, agentID, ownerID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET owner_id = $2 WHERE id = $1 AND owner_id IS NULL`, agentID, ownerID)
	if err != nil {
		return mapErr("postgres: set owner "+agentID, err)
	}
	if tag.RowsAffected() == 0 {
		if err := t.accountExists(ctx, "store.set_account_owner", agentID); err != nil {
			return err
		}
		return &model.Error{Kind: model.ErrInvalidState, Op: "store.set_account_owner",
			AccountID: agentID, Msg: "account already has an owner"}
	}
	return nil
}

func (t *pgTx) accountExists(ctx context.Context, op, id string) error {
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return mapErr("postgres: check account "+id, err)
	}
	if !exists {
		return notFound(op, "account", id)
	}
	return nil
}

func (t *pgTx) MarketForUpdate(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(t.tx.QueryRow(ctx, marketSelect+` WHERE m.id = $1 FOR UPDATE OF m`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("store.market_for_update", "market", id)
	}
	if err != nil {
		return nil, mapErr("postgres: lock market "+id, err)
	}
	return m, nil
}

func (t *pgTx) UpdatePool(ctx context.Context, marketID string, expectedVersion int64, next model.Pool) (model.Pool, error) {
	var version int64
	err := t.tx.QueryRow(ctx,
		`UPDATE pools SET yes_reserve = $3::NUMERIC, no_reserve = $4::NUMERIC,
		        collateral = $5::NUMERIC, fee_bps = $6, version = version + 1
		 WHERE market_id = $1 AND version = $2
		 RETURNING version`,
		marketID, expectedVersion,
		next.YesReserve.String(), next.NoReserve.String(), next.Collateral.String(), next.FeeBps,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Pool{}, &model.Error{Kind: model.ErrConcurrencyConflict, Op: "store.update_pool",
			MarketID: marketID, Msg: "pool version changed"}
	}
	if err != nil {
		return model.Pool{}, mapErr("postgres: update pool "+marketID, err)
	}
	next.Version = version
	return next, nil
}

func (t *pgTx) ResolveMarket(ctx context.Context, marketID string, outcome model.Outcome, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE markets SET status = 'RESOLVED', outcome = $2, resolved_at = $3
		 WHERE id = $1 AND status = 'OPEN'`, marketID, outcome, at)
	if err != nil {
		return mapErr("postgres: resolve market "+marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return &model.Error{Kind: model.ErrConcurrencyConflict, Op: "store.resolve_market",
			MarketID: marketID, Msg: "market is no longer open"}
	}
	return nil
}

func (t *pgTx) IncrementPosition(ctx context.Context, accountID, marketID string, outcome model.Outcome, shares decimal.Decimal) (*model.Position, error) {
	if err := checkAmount("store.increment_position", shares); err != nil {
		return nil, err
	}
	yes, no := shares, decimal.Zero
	if outcome == model.OutcomeNo {
		yes, no = decimal.Zero, shares
	}
	p, err := scanPosition(t.tx.QueryRow(ctx,
		`INSERT INTO positions (account_id, market_id, yes_shares, no_shares, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5)
		 ON CONFLICT (account_id, market_id) DO UPDATE SET
		     yes_shares = positions.yes_shares + EXCLUDED.yes_shares,
		     no_shares  = positions.no_shares + EXCLUDED.no_shares,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+positionCols,
		accountID, marketID, yes.String(), no.String(), time.Now().UTC()))
	if err != nil {
		return nil, mapErr("postgres: increment position", err)
	}
	return p, nil
}

func (t *pgTx) PositionsForUpdate(ctx context.Context, marketID string) ([]model.Position, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 ORDER BY account_id FOR UPDATE`, marketID)
	if err != nil {
		return nil, mapErr("postgres: lock positions", err)
	}
	return scanPositions(rows)
}

func (t *pgTx) ZeroPosition(ctx context.Context, accountID, marketID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE positions SET yes_shares = 0, no_shares = 0, updated_at = $3
		 WHERE account_id = $1 AND market_id = $2`, accountID, marketID, time.Now().UTC())
	if err != nil {
		return mapErr("postgres: zero position", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.Error{Kind: model.ErrNotFound, Op: "store.zero_position",
			AccountID: accountID, MarketID: marketID, Msg: "position not found"}
	}
	return nil
}

func (t *pgTx) AddTreasury(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount("store.add_treasury", amount); err != nil {
		return decimal.Zero, err
	}
	var bal string
	err := t.tx.QueryRow(ctx,
		`INSERT INTO treasury (id, balance) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (id) DO UPDATE SET balance = treasury.balance + EXCLUDED.balance
		 RETURNING balance::TEXT`, HouseAccountID, amount.String()).Scan(&bal)
	if err != nil {
		return decimal.Zero, mapErr("postgres: add treasury", err)
	}
	return parseNumeric(bal)
}

func (t *pgTx) InsertTrade(ctx context.Context, tr *model.Trade) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO trades (id, market_id, account_id, side, collateral_in, fee, shares_out,
		                     pool_yes, pool_no, pool_collateral, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11)`,
		tr.ID, tr.MarketID, tr.AccountID, tr.Outcome,
		tr.CollateralIn.String(), tr.Fee.String(), tr.SharesOut.String(),
		tr.PoolYes.String(), tr.PoolNo.String(), tr.PoolCollateral.String(),
		tr.CreatedAt,
	)
	return mapErr("postgres: insert trade "+tr.ID, err)
}

// --- Scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*model.Account, error) {
	var a model.Account
	var owner *string
	var bal string
	if err := row.Scan(&a.ID, &a.Kind, &owner, &a.DisplayName, &bal, &a.CreatedAt); err != nil {
		return nil, err
	}
	if owner != nil {
		a.OwnerID = *owner
	}
	var err error
	a.Balance, err = parseNumeric(bal)
	return &a, err
}

func scanMarket(row scanner) (*model.Market, error) {
	var m model.Market
	var yes, no, coll *string
	var fee *int
	var version *int64
	if err := row.Scan(&m.ID, &m.Title, &m.Description, &m.Status, &m.Outcome, &m.CreatedAt, &m.ResolvedAt,
		&yes, &no, &coll, &fee, &version); err != nil {
		return nil, err
	}
	if yes == nil {
		return &m, nil
	}
	p := &model.Pool{FeeBps: *fee, Version: *version}
	var err error
	if p.YesReserve, err = parseNumeric(*yes); err != nil {
		return nil, err
	}
	if p.NoReserve, err = parseNumeric(*no); err != nil {
		return nil, err
	}
	if p.Collateral, err = parseNumeric(*coll); err != nil {
		return nil, err
	}
	m.Pool = p
	return &m, nil
}

func scanPosition(row scanner) (*model.Position, error) {
	var p model.Position
	var yes, no string
	if err := row.Scan(&p.AccountID, &p.MarketID, &yes, &no, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.YesShares, err = parseNumeric(yes); err != nil {
		return nil, err
	}
	p.NoShares, err = parseNumeric(no)
	return &p, err
}

func scanPositions(rows pgx.Rows) ([]model.Position, error) {
	defer rows.Close()
	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, mapErr("postgres: scan position", err)
		}
		positions = append(positions, *p)
	}
	return positions, mapErr("postgres: scan positions", rows.Err())
}

func scanTrades(rows pgx.Rows) ([]model.Trade, error) {
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var in, fee, out, py, pn, pc string
		if err := rows.Scan(&t.ID, &t.MarketID, &t.AccountID, &t.Outcome,
			&in, &fee, &out, &py, &pn, &pc, &t.CreatedAt); err != nil {
			return nil, mapErr("postgres: scan trade", err)
		}
		vals, err := parseNumerics(in, fee, out, py, pn, pc)
		if err != nil {
			return nil, err
		}
		t.CollateralIn, t.Fee, t.SharesOut = vals[0], vals[1], vals[2]
		t.PoolYes, t.PoolNo, t.PoolCollateral = vals[3], vals[4], vals[5]
		trades = append(trades, t)
	}
	return trades, mapErr("postgres: scan trades", rows.Err())
}

func parseNumeric(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &model.Error{Kind: model.ErrPersistence, Op: "postgres.parse_numeric",
			Msg: fmt.Sprintf("bad numeric %q", s), Err: err}
	}
	return d, nil
}

func parseNumerics(ss ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		d, err := parseNumeric(s)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

// SQLSTATE codes that mean "another transaction got there first".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeForeignKeyViolation  = "23503"
)

// mapErr classifies a driver error into the ledger's taxonomy. Errors that
// already carry a kind pass through untouched.
func mapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	var me *model.Error
	if errors.As(err, &me) {
		return err
	}
	kind := model.ErrPersistence
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		kind = model.ErrNotFound
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			kind = model.ErrConcurrencyConflict
		case codeUniqueViolation:
			kind = model.ErrInvalidState
		case codeCheckViolation, codeForeignKeyViolation:
			kind = model.ErrInvalidParameter
		}
	}
	return &model.Error{Kind: kind, Op: msg, Err: err}
}
