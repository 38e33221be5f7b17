package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	insertBotSQL = `INSERT INTO telegram_bots (agent_name, bio, invite_url, bot_token, chat_group_id, subject_address, chain_type)
    VALUES ($1, $2, $3, $4, $5, $6, $7);`

	selectBotBySubjectSQL = `SELECT agent_name, bio, invite_url, bot_token, chat_group_id, subject_address, chain_type, created_at
    FROM telegram_bots
    WHERE subject_address = $1 AND chain_type = $2;`

	selectBotByChatSQL = `SELECT agent_name, bio, invite_url, bot_token, chat_group_id, subject_address, chain_type, created_at
    FROM telegram_bots
    WHERE chat_group_id = $1 AND chain_type = $2;`

	selectBotByNameSQL = `SELECT agent_name, bio, invite_url, bot_token, chat_group_id, subject_address, chain_type, created_at
    FROM telegram_bots
    WHERE agent_name = $1;`

	listBotsSQL = `SELECT agent_name, bio, invite_url, bot_token, chat_group_id, subject_address, chain_type, created_at
    FROM telegram_bots
    ORDER BY created_at DESC
    LIMIT $1 OFFSET $2;`

	countBotsSQL = `SELECT COUNT(*) FROM telegram_bots;`
)

// BotStore exposes the gated-community registry.
type BotStore interface {
	InsertBot(ctx context.Context, bot Bot) error
	GetBotBySubject(ctx context.Context, subject, chainType string) (Bot, bool, error)
	GetBotByChat(ctx context.Context, chatGroupID, chainType string) (Bot, bool, error)
	GetBotByName(ctx context.Context, agentName string) (Bot, bool, error)
	ListBots(ctx context.Context, page, pageSize int64) ([]Bot, int64, error)
}

// InsertBot registers a new gated community.
func (s *Store) InsertBot(ctx context.Context, bot Bot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertBotSQL,
		bot.AgentName,
		nullableString(bot.Bio),
		bot.InviteURL,
		bot.BotToken,
		bot.ChatGroupID,
		bot.SubjectAddress,
		bot.ChainType,
	)
	if execErr != nil {
		return fmt.Errorf("insert bot: %w", execErr)
	}
	return nil
}

// GetBotBySubject resolves the community guarding a subject's shares.
func (s *Store) GetBotBySubject(ctx context.Context, subject, chainType string) (Bot, bool, error) {
	return s.getBot(ctx, selectBotBySubjectSQL, subject, chainType)
}

// GetBotByChat resolves the community behind a chat group id.
func (s *Store) GetBotByChat(ctx context.Context, chatGroupID, chainType string) (Bot, bool, error) {
	return s.getBot(ctx, selectBotByChatSQL, chatGroupID, chainType)
}

// GetBotByName resolves a community by its registered agent name.
func (s *Store) GetBotByName(ctx context.Context, agentName string) (Bot, bool, error) {
	return s.getBot(ctx, selectBotByNameSQL, agentName)
}

func (s *Store) getBot(ctx context.Context, query string, args ...interface{}) (Bot, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return Bot{}, false, err
	}

	bot, scanErr := scanBot(pool.QueryRow(ctx, query, args...))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Bot{}, false, nil
		}
		return Bot{}, false, fmt.Errorf("get bot: %w", scanErr)
	}
	return bot, true, nil
}

// ListBots pages through registered communities, newest first.
func (s *Store) ListBots(ctx context.Context, page, pageSize int64) ([]Bot, int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if scanErr := pool.QueryRow(ctx, countBotsSQL).Scan(&total); scanErr != nil {
		return nil, 0, fmt.Errorf("count bots: %w", scanErr)
	}

	offset := (page - 1) * pageSize
	rows, queryErr := pool.Query(ctx, listBotsSQL, pageSize, offset)
	if queryErr != nil {
		return nil, 0, fmt.Errorf("list bots: %w", queryErr)
	}
	defer rows.Close()

	bots := make([]Bot, 0, pageSize)
	for rows.Next() {
		bot, scanErr := scanBot(rows)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		bots = append(bots, bot)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return bots, total, nil
}

func scanBot(row pgx.Row) (Bot, error) {
	var (
		bot Bot
		bio *string
	)
	if err := row.Scan(
		&bot.AgentName,
		&bio,
		&bot.InviteURL,
		&bot.BotToken,
		&bot.ChatGroupID,
		&bot.SubjectAddress,
		&bot.ChainType,
		&bot.CreatedAt,
	); err != nil {
		return Bot{}, err
	}
	if bio != nil {
		bot.Bio = *bio
	}
	return bot, nil
}
