package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"shares-gate/internal/chain"
	"shares-gate/internal/metrics"
	"shares-gate/internal/storage"
)

var (
	// ErrCommunityNotFound indicates no bot is registered for the request.
	ErrCommunityNotFound = errors.New("community not registered")

	// ErrAddressMismatch indicates the recovered signer differs from the
	// claimed user.
	ErrAddressMismatch = errors.New("recovered address does not match user")
)

// Decision is the outcome of a ledger transition: restore (Allow) or revoke
// a trader's access to the community gated by Subject.
type Decision struct {
	ChainType  string
	Trader     string
	Subject    string
	TelegramID string
	Allow      bool
}

// AuthRequest carries the synchronous gate-check inputs. Challenge doubles
// as the requester's Telegram id, which is the identity stored on success.
type AuthRequest struct {
	Challenge   string
	ChatGroupID string
	Signature   string
	User        string
	ChainType   string
}

// Policy turns ledger transitions and verification results into access
// changes on the external chat system.
type Policy struct {
	bots     storage.BotStore
	mappings storage.MappingStore
	notifier Notifier
	logger   zerolog.Logger
}

// NewPolicy constructs the access policy.
func NewPolicy(bots storage.BotStore, mappings storage.MappingStore, notifier Notifier, logger zerolog.Logger) *Policy {
	return &Policy{
		bots:     bots,
		mappings: mappings,
		notifier: notifier,
		logger:   logger.With().Str("component", "gate_policy").Logger(),
	}
}

// ApplyDecision executes a ledger-driven decision. A subject without a
// registered community is a warn-level no-op; notifier failures are
// returned for the caller to log, the ledger state is already committed.
func (p *Policy) ApplyDecision(ctx context.Context, d Decision) error {
	bot, ok, err := p.bots.GetBotBySubject(ctx, d.Subject, d.ChainType)
	if err != nil {
		return fmt.Errorf("lookup community: %w", err)
	}
	if !ok {
		p.logger.Warn().
			Str("subject", d.Subject).
			Str("chain", d.ChainType).
			Msg("no community registered for subject, decision dropped")
		return nil
	}

	action := "gate"
	if d.Allow {
		action = "ungate"
	}
	metrics.GateDecisions.WithLabelValues(d.ChainType, action).Inc()

	if err := p.notifier.SetMemberAccess(ctx, bot.BotToken, bot.ChatGroupID, d.TelegramID, d.Allow); err != nil {
		return fmt.Errorf("apply %s for %s: %w", action, d.Trader, err)
	}

	p.logger.Info().
		Str("action", action).
		Str("trader", d.Trader).
		Str("subject", d.Subject).
		Str("chain", d.ChainType).
		Msg("gate decision applied")
	return nil
}

// Authorize runs the synchronous gate-check path: verify the signature,
// require the recovered identity to match the claimed user, refresh the
// identity mapping, then grant access when the live on-chain balance is
// positive. Repeating the call with the same inputs yields the same stored
// mapping and the same decision.
func (p *Policy) Authorize(ctx context.Context, adapter chain.Adapter, req AuthRequest) error {
	bot, ok, err := p.bots.GetBotByChat(ctx, req.ChatGroupID, req.ChainType)
	if err != nil {
		return fmt.Errorf("lookup community: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: chat %s on %s", ErrCommunityNotFound, req.ChatGroupID, req.ChainType)
	}

	recovered, err := adapter.VerifySignature(req.Challenge, req.Signature)
	if err != nil {
		return err
	}

	claimed := NormalizeAddress(req.User)
	if recovered != claimed {
		return fmt.Errorf("%w: recovered %s, claimed %s", ErrAddressMismatch, recovered, claimed)
	}

	if err := p.mappings.UpsertMapping(ctx, recovered, req.ChainType, req.Challenge); err != nil {
		return fmt.Errorf("save identity mapping: %w", err)
	}

	balance, err := adapter.ShareBalance(ctx, bot.SubjectAddress, recovered)
	if err != nil {
		return fmt.Errorf("query live balance: %w", err)
	}

	if balance == 0 {
		// No shares means no grant; the caller still gets success with no
		// state change beyond the refreshed mapping.
		p.logger.Info().
			Str("user", recovered).
			Str("subject", bot.SubjectAddress).
			Msg("zero live balance, access not granted")
		return nil
	}

	metrics.GateDecisions.WithLabelValues(req.ChainType, "ungate").Inc()
	if err := p.notifier.SetMemberAccess(ctx, bot.BotToken, bot.ChatGroupID, req.Challenge, true); err != nil {
		return err
	}

	p.logger.Info().
		Str("user", recovered).
		Str("chat_group_id", bot.ChatGroupID).
		Msg("access granted after signature verification")
	return nil
}

// NormalizeAddress lowercases an address and strips the 0x prefix, the
// canonical form used across ledger and mapping keys.
func NormalizeAddress(addr string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(addr)), "0x")
}
