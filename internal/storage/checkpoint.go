package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	selectCheckpointSQL = `SELECT last_position, cursor_metadata
    FROM sync_status
    WHERE chain_type = $1;`

	insertCheckpointSQL = `INSERT INTO sync_status (chain_type, last_position, cursor_metadata)
    VALUES ($1, $2, $3)
    ON CONFLICT (chain_type) DO NOTHING;`

	updateCheckpointSQL = `UPDATE sync_status
    SET last_position = $2, cursor_metadata = $3
    WHERE chain_type = $1;`

	listCheckpointsSQL = `SELECT chain_type, last_position, cursor_metadata
    FROM sync_status
    ORDER BY chain_type;`
)

// CheckpointStore persists per-chain sync cursors.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, chainType string) (Checkpoint, bool, error)
	InitCheckpoint(ctx context.Context, cp Checkpoint) error
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
}

// LoadCheckpoint returns the stored cursor for a chain, if any.
func (s *Store) LoadCheckpoint(ctx context.Context, chainType string) (Checkpoint, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return Checkpoint{}, false, err
	}

	var (
		position int64
		token    sql.NullString
	)
	row := pool.QueryRow(ctx, selectCheckpointSQL, chainType)
	if scanErr := row.Scan(&position, &token); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("load checkpoint: %w", scanErr)
	}

	cp := Checkpoint{ChainType: chainType, Position: uint64(position)}
	if token.Valid {
		cp.CursorToken = token.String
	}
	return cp, true, nil
}

// InitCheckpoint persists the initial cursor for a chain. Existing rows are
// left untouched.
func (s *Store) InitCheckpoint(ctx context.Context, cp Checkpoint) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertCheckpointSQL, cp.ChainType, int64(cp.Position), nullableString(cp.CursorToken)); execErr != nil {
		return fmt.Errorf("init checkpoint: %w", execErr)
	}
	return nil
}

// SaveCheckpoint advances the stored cursor after a fully applied batch.
func (s *Store) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, updateCheckpointSQL, cp.ChainType, int64(cp.Position), nullableString(cp.CursorToken)); execErr != nil {
		return fmt.Errorf("save checkpoint: %w", execErr)
	}
	return nil
}

// ListCheckpoints returns every stored cursor, for operator inspection.
func (s *Store) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listCheckpointsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list checkpoints: %w", queryErr)
	}
	defer rows.Close()

	checkpoints := make([]Checkpoint, 0)
	for rows.Next() {
		var (
			cp       Checkpoint
			position int64
			token    sql.NullString
		)
		if scanErr := rows.Scan(&cp.ChainType, &position, &token); scanErr != nil {
			return nil, scanErr
		}
		cp.Position = uint64(position)
		if token.Valid {
			cp.CursorToken = token.String
		}
		checkpoints = append(checkpoints, cp)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return checkpoints, nil
}

func nullableString(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
