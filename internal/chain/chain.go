package chain

import (
	"context"

	"github.com/shopspring/decimal"

	"shares-gate/internal/storage"
)

// TradeEvent is a decoded share trade, normalised across chains. TxID and
// LogIndex together with the chain name form the replay-protection key; they
// are never persisted in the ledger itself.
type TradeEvent struct {
	Trader    string
	Subject   string
	IsBuy     bool
	Amount    decimal.Decimal
	TxID      string
	LogIndex  uint64
	ChainType string
}

// Adapter is the capability set shared by every chain backend.
type Adapter interface {
	// Name is the stable identifier partitioning checkpoints, ledger rows
	// and identity mappings.
	Name() string

	// VerifySignature recovers the canonical lowercase hex address (no 0x
	// prefix) that signed the challenge. Failure modes are
	// ErrMalformedSignature and ErrRecoveryFailed.
	VerifySignature(challenge, signature string) (string, error)

	// ShareBalance performs a live on-chain read of the user's share
	// balance for a subject. Used for synchronous access decisions, never
	// the cached ledger.
	ShareBalance(ctx context.Context, subject, user string) (uint64, error)
}

// Batch is one bounded window of events plus the checkpoint that becomes
// durable once every event has been applied.
type Batch struct {
	Events []TradeEvent
	Next   storage.Checkpoint
}

// Source feeds the sync engine. Implementations own all chain-shape
// specifics (block windows, cursor pagination); the engine only sees
// checkpoints and batches, so adding a chain never touches the engine.
type Source interface {
	Name() string

	// Bootstrap returns the checkpoint to persist when none is stored.
	Bootstrap() storage.Checkpoint

	// Next fetches the batch following cp. A nil batch means the source is
	// caught up and the engine should idle before polling again.
	Next(ctx context.Context, cp storage.Checkpoint) (*Batch, error)
}
