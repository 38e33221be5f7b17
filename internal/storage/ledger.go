package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	insertAppliedEventSQL = `INSERT INTO applied_events (chain_type, tx_id, log_index)
    VALUES ($1, $2, $3)
    ON CONFLICT (chain_type, tx_id, log_index) DO NOTHING;`

	upsertBuySQL = `INSERT INTO trades (trader, subject, chain_type, share_amount)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (trader, subject, chain_type)
    DO UPDATE SET share_amount = trades.share_amount + EXCLUDED.share_amount
    RETURNING share_amount;`

	applySellSQL = `UPDATE trades
    SET share_amount = share_amount - $4
    WHERE trader = $1 AND subject = $2 AND chain_type = $3
    RETURNING share_amount;`

	selectShareAmountSQL = `SELECT share_amount
    FROM trades
    WHERE trader = $1 AND subject = $2 AND chain_type = $3;`

	listUserSharesSQL = `SELECT trader, subject, chain_type, share_amount
    FROM trades
    WHERE trader = $1 AND chain_type = $2
    ORDER BY subject;`
)

// TradeLedger folds trade mutations into the per-key share balances.
type TradeLedger interface {
	ApplyTrade(ctx context.Context, mut TradeMutation) (TradeResult, error)
}

// ApplyTrade records the event key and mutates the matching ledger row in a
// single transaction. Replaying an already-recorded event leaves the ledger
// unchanged and reports Applied=false, which is what makes batch re-fetch
// after a crash safe.
func (s *Store) ApplyTrade(ctx context.Context, mut TradeMutation) (TradeResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return TradeResult{}, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return TradeResult{}, fmt.Errorf("begin trade tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, execErr := tx.Exec(ctx, insertAppliedEventSQL, mut.ChainType, mut.TxID, int64(mut.LogIndex))
	if execErr != nil {
		return TradeResult{}, fmt.Errorf("record applied event: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return TradeResult{}, fmt.Errorf("commit replay no-op: %w", commitErr)
		}
		return TradeResult{Applied: false}, nil
	}

	result := TradeResult{Applied: true, Found: true}
	amount := mut.Amount.String()

	var balanceStr string
	if mut.IsBuy {
		row := tx.QueryRow(ctx, upsertBuySQL, mut.Trader, mut.Subject, mut.ChainType, amount)
		if scanErr := row.Scan(&balanceStr); scanErr != nil {
			return TradeResult{}, fmt.Errorf("apply buy: %w", scanErr)
		}
	} else {
		row := tx.QueryRow(ctx, applySellSQL, mut.Trader, mut.Subject, mut.ChainType, amount)
		if scanErr := row.Scan(&balanceStr); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				// Selling a key that was never bought. The event stays
				// recorded so a replay does not resurrect the warning.
				result.Found = false
				if commitErr := tx.Commit(ctx); commitErr != nil {
					return TradeResult{}, fmt.Errorf("commit orphan sell: %w", commitErr)
				}
				return result, nil
			}
			return TradeResult{}, fmt.Errorf("apply sell: %w", scanErr)
		}
	}

	balance, convErr := decimal.NewFromString(balanceStr)
	if convErr != nil {
		return TradeResult{}, fmt.Errorf("parse share amount: %w", convErr)
	}
	result.Balance = balance

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return TradeResult{}, fmt.Errorf("commit trade: %w", commitErr)
	}
	return result, nil
}

// GetShareAmount reads the cached ledger balance for one key.
func (s *Store) GetShareAmount(ctx context.Context, trader, subject, chainType string) (decimal.Decimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return decimal.Decimal{}, err
	}

	var balanceStr string
	row := pool.QueryRow(ctx, selectShareAmountSQL, trader, subject, chainType)
	if scanErr := row.Scan(&balanceStr); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Decimal{}, fmt.Errorf("get share amount: %w", scanErr)
	}

	balance, convErr := decimal.NewFromString(balanceStr)
	if convErr != nil {
		return decimal.Decimal{}, fmt.Errorf("parse share amount: %w", convErr)
	}
	return balance, nil
}

// ListUserShares returns every ledger row held by a trader on one chain.
func (s *Store) ListUserShares(ctx context.Context, trader, chainType string) ([]UserShare, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listUserSharesSQL, trader, chainType)
	if queryErr != nil {
		return nil, fmt.Errorf("list user shares: %w", queryErr)
	}
	defer rows.Close()

	shares := make([]UserShare, 0)
	for rows.Next() {
		var (
			share      UserShare
			balanceStr string
		)
		if scanErr := rows.Scan(&share.Trader, &share.Subject, &share.ChainType, &balanceStr); scanErr != nil {
			return nil, scanErr
		}
		balance, convErr := decimal.NewFromString(balanceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse share amount: %w", convErr)
		}
		share.ShareAmount = balance
		shares = append(shares, share)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return shares, nil
}
