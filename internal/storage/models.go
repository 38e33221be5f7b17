package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Checkpoint is the durable per-chain ingestion cursor. Position is a
// monotonically non-decreasing integer; CursorToken, when set, is the
// authoritative opaque cursor for resuming and Position is only a numeric
// surrogate kept for schema uniformity.
type Checkpoint struct {
	ChainType   string
	Position    uint64
	CursorToken string
}

// TradeMutation describes one decoded trade to fold into the ledger.
type TradeMutation struct {
	Trader    string
	Subject   string
	ChainType string
	Amount    decimal.Decimal
	IsBuy     bool
	TxID      string
	LogIndex  uint64
}

// TradeResult reports the outcome of applying a TradeMutation.
type TradeResult struct {
	// Applied is false when the event key was already recorded; the
	// balance is left untouched in that case.
	Applied bool
	// Found is false for a sell against a key that was never bought.
	Found bool
	// Balance is the post-mutation share amount for the key.
	Balance decimal.Decimal
}

// Mapping links an on-chain address to an external chat identity.
type Mapping struct {
	Address    string
	ChainType  string
	TelegramID string
	Banned     bool
}

// UserShare is one ledger row owned by a trader.
type UserShare struct {
	Trader      string
	Subject     string
	ChainType   string
	ShareAmount decimal.Decimal
}

// Bot is a registered gated community: a Telegram bot guarding one chat
// group tied to a subject address.
type Bot struct {
	AgentName      string
	Bio            string
	InviteURL      string
	BotToken       string
	ChatGroupID    string
	SubjectAddress string
	ChainType      string
	CreatedAt      time.Time
}
