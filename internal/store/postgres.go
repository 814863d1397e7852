package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/yield-hedge/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Each Apply runs in a single transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Bootstrap seeds the ledger state row on first start. The owner recorded
// at first start is kept forever; the stored owner is returned.
func (s *PostgresStore) Bootstrap(ctx context.Context, owner model.Identity) (model.Identity, error) {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_state (singleton, owner) VALUES (TRUE, $1)
		 ON CONFLICT (singleton) DO NOTHING`, string(owner)); err != nil {
		return "", fmt.Errorf("bootstrap ledger state: %w", err)
	}
	st, err := s.GetLedgerState(ctx)
	if err != nil {
		return "", err
	}
	return st.Owner, nil
}

const hedgeColumns = `id, creator, crop_type, region, yield_threshold, payout_amount, stake_amount,
	counterparty, season_start, season_end, settled, matched, cancelled, hedge_type, fee_paid`

func (s *PostgresStore) GetHedge(ctx context.Context, id int64) (*model.Hedge, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+hedgeColumns+` FROM hedges WHERE id = $1`, id)
	h, err := scanHedge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get hedge %d: %w", id, err)
	}
	return h, nil
}

func (s *PostgresStore) ListHedges(ctx context.Context) ([]model.Hedge, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+hedgeColumns+` FROM hedges ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hedges []model.Hedge
	for rows.Next() {
		h, err := scanHedge(rows)
		if err != nil {
			return nil, err
		}
		hedges = append(hedges, *h)
	}
	return hedges, rows.Err()
}

func (s *PostgresStore) GetStake(ctx context.Context, hedgeID int64, participant model.Identity) (*model.Stake, error) {
	st := model.Stake{HedgeID: hedgeID, Participant: participant}
	err := s.pool.QueryRow(ctx,
		`SELECT amount FROM stakes WHERE hedge_id = $1 AND participant = $2`,
		hedgeID, string(participant)).Scan(&st.Amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stake %d/%s: %w", hedgeID, participant, err)
	}
	return &st, nil
}

func (s *PostgresStore) GetSettlement(ctx context.Context, hedgeID int64) (*model.Settlement, error) {
	st := model.Settlement{HedgeID: hedgeID}
	var winner string
	err := s.pool.QueryRow(ctx,
		`SELECT actual_yield, winner, payout, timestamp FROM settlements WHERE hedge_id = $1`,
		hedgeID).Scan(&st.ActualYield, &winner, &st.Payout, &st.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement %d: %w", hedgeID, err)
	}
	st.Winner = model.Identity(winner)
	return &st, nil
}

func (s *PostgresStore) GetLedgerState(ctx context.Context) (model.LedgerState, error) {
	var st model.LedgerState
	var owner string
	err := s.pool.QueryRow(ctx,
		`SELECT hedge_counter, total_fees, paused, owner FROM ledger_state WHERE singleton`).
		Scan(&st.HedgeCounter, &st.TotalFees, &st.Paused, &owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LedgerState{}, ErrNotBootstrapped
	}
	if err != nil {
		return model.LedgerState{}, fmt.Errorf("get ledger state: %w", err)
	}
	st.Owner = model.Identity(owner)
	return st, nil
}

func (s *PostgresStore) GetTransfersByHedge(ctx context.Context, hedgeID int64) ([]model.Transfer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, hedge_id, from_id, to_id, amount, kind, clock
		 FROM transfers WHERE hedge_id = $1 ORDER BY seq`, hedgeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransfers(rows)
}

func (s *PostgresStore) GetTransfersByParticipant(ctx context.Context, participant model.Identity) ([]model.Transfer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, hedge_id, from_id, to_id, amount, kind, clock
		 FROM transfers WHERE from_id = $1 OR to_id = $1 ORDER BY seq`, string(participant))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransfers(rows)
}

func (s *PostgresStore) Apply(ctx context.Context, m *Mutation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, h := range m.Hedges {
		var cp *string
		if id, ok := h.Counterparty.Get(); ok {
			v := string(id)
			cp = &v
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO hedges (`+hedgeColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			 ON CONFLICT (id) DO UPDATE SET
			     counterparty = EXCLUDED.counterparty,
			     settled = EXCLUDED.settled,
			     matched = EXCLUDED.matched,
			     cancelled = EXCLUDED.cancelled,
			     fee_paid = EXCLUDED.fee_paid`,
			h.ID, string(h.Creator), h.CropType, h.Region, h.YieldThreshold, h.PayoutAmount, h.StakeAmount,
			cp, h.SeasonStart, h.SeasonEnd, h.Settled, h.Matched, h.Cancelled, string(h.HedgeType), h.FeePaid,
		); err != nil {
			return fmt.Errorf("upsert hedge %d: %w", h.ID, err)
		}
	}

	for _, st := range m.PutStakes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO stakes (hedge_id, participant, amount) VALUES ($1, $2, $3)
			 ON CONFLICT (hedge_id, participant) DO UPDATE SET amount = EXCLUDED.amount`,
			st.HedgeID, string(st.Participant), st.Amount,
		); err != nil {
			return fmt.Errorf("put stake %d/%s: %w", st.HedgeID, st.Participant, err)
		}
	}

	for _, k := range m.DeleteStakes {
		tag, err := tx.Exec(ctx,
			`DELETE FROM stakes WHERE hedge_id = $1 AND participant = $2`,
			k.HedgeID, string(k.Participant))
		if err != nil {
			return fmt.Errorf("delete stake %d/%s: %w", k.HedgeID, k.Participant, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: hedge %d participant %s", ErrStakeMissing, k.HedgeID, k.Participant)
		}
	}

	for _, st := range m.Settlements {
		tag, err := tx.Exec(ctx,
			`INSERT INTO settlements (hedge_id, actual_yield, winner, payout, timestamp)
			 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (hedge_id) DO NOTHING`,
			st.HedgeID, st.ActualYield, string(st.Winner), st.Payout, st.Timestamp)
		if err != nil {
			return fmt.Errorf("insert settlement %d: %w", st.HedgeID, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: hedge %d", ErrSettlementExists, st.HedgeID)
		}
	}

	for _, t := range m.Transfers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO transfers (id, hedge_id, from_id, to_id, amount, kind, clock)
			 VALUES ($1::UUID, $2, $3, $4, $5, $6, $7)`,
			t.ID, t.HedgeID, string(t.From), string(t.To), t.Amount, string(t.Kind), t.Clock,
		); err != nil {
			return fmt.Errorf("insert transfer %s: %w", t.ID, err)
		}
	}

	if m.State != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE ledger_state SET hedge_counter = $1, total_fees = $2, paused = $3 WHERE singleton`,
			m.State.HedgeCounter, m.State.TotalFees, m.State.Paused)
		if err != nil {
			return fmt.Errorf("update ledger state: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return ErrNotBootstrapped
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// scanHedge reads one hedge row from either pgx.Row or pgx.Rows.
func scanHedge(row pgx.Row) (*model.Hedge, error) {
	var h model.Hedge
	var creator, hedgeType string
	var cp *string
	if err := row.Scan(&h.ID, &creator, &h.CropType, &h.Region, &h.YieldThreshold,
		&h.PayoutAmount, &h.StakeAmount, &cp, &h.SeasonStart, &h.SeasonEnd,
		&h.Settled, &h.Matched, &h.Cancelled, &hedgeType, &h.FeePaid); err != nil {
		return nil, err
	}
	h.Creator = model.Identity(creator)
	h.HedgeType = model.HedgeType(hedgeType)
	if cp != nil {
		h.Counterparty = model.Matched(model.Identity(*cp))
	}
	return &h, nil
}

// pgxRows is the subset of pgx.Rows used by scanTransfers.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTransfers(rows pgxRows) ([]model.Transfer, error) {
	var transfers []model.Transfer
	for rows.Next() {
		var t model.Transfer
		var from, to, kind string
		if err := rows.Scan(&t.ID, &t.HedgeID, &from, &to, &t.Amount, &kind, &t.Clock); err != nil {
			return nil, err
		}
		t.From = model.Identity(from)
		t.To = model.Identity(to)
		t.Kind = model.TransferKind(kind)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}
