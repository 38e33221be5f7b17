package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	selectMappingSQL = `SELECT address, chain_type, telegram_id, is_banned
    FROM user_mappings
    WHERE address = $1 AND chain_type = $2;`

	upsertMappingSQL = `INSERT INTO user_mappings (address, chain_type, telegram_id)
    VALUES ($1, $2, $3)
    ON CONFLICT (address, chain_type) DO UPDATE SET telegram_id = EXCLUDED.telegram_id;`

	markBannedSQL = `UPDATE user_mappings
    SET is_banned = TRUE
    WHERE address = $1 AND chain_type = $2;`
)

// MappingStore persists address to chat-identity links.
type MappingStore interface {
	GetMapping(ctx context.Context, address, chainType string) (Mapping, bool, error)
	UpsertMapping(ctx context.Context, address, chainType, telegramID string) error
	MarkBanned(ctx context.Context, address, chainType string) error
}

// GetMapping looks up the identity mapping for an address on one chain.
func (s *Store) GetMapping(ctx context.Context, address, chainType string) (Mapping, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return Mapping{}, false, err
	}

	var m Mapping
	row := pool.QueryRow(ctx, selectMappingSQL, address, chainType)
	if scanErr := row.Scan(&m.Address, &m.ChainType, &m.TelegramID, &m.Banned); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Mapping{}, false, nil
		}
		return Mapping{}, false, fmt.Errorf("get mapping: %w", scanErr)
	}
	return m, true, nil
}

// UpsertMapping creates or refreshes the identity mapping after a
// successful signature verification. The ban flag is left untouched.
func (s *Store) UpsertMapping(ctx context.Context, address, chainType, telegramID string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertMappingSQL, address, chainType, telegramID); execErr != nil {
		return fmt.Errorf("upsert mapping: %w", execErr)
	}
	return nil
}

// MarkBanned sets the gated flag for an address after its balance reached
// zero. The flag is never cleared programmatically.
func (s *Store) MarkBanned(ctx context.Context, address, chainType string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markBannedSQL, address, chainType); execErr != nil {
		return fmt.Errorf("mark banned: %w", execErr)
	}
	return nil
}
