package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"shares-gate/internal/chain"
	"shares-gate/internal/storage"
)

type fakeBots struct {
	bots []storage.Bot
}

func (f *fakeBots) InsertBot(_ context.Context, bot storage.Bot) error {
	f.bots = append(f.bots, bot)
	return nil
}

func (f *fakeBots) GetBotBySubject(_ context.Context, subject, chainType string) (storage.Bot, bool, error) {
	for _, b := range f.bots {
		if b.SubjectAddress == subject && b.ChainType == chainType {
			return b, true, nil
		}
	}
	return storage.Bot{}, false, nil
}

func (f *fakeBots) GetBotByChat(_ context.Context, chatGroupID, chainType string) (storage.Bot, bool, error) {
	for _, b := range f.bots {
		if b.ChatGroupID == chatGroupID && b.ChainType == chainType {
			return b, true, nil
		}
	}
	return storage.Bot{}, false, nil
}

func (f *fakeBots) GetBotByName(_ context.Context, agentName string) (storage.Bot, bool, error) {
	for _, b := range f.bots {
		if b.AgentName == agentName {
			return b, true, nil
		}
	}
	return storage.Bot{}, false, nil
}

func (f *fakeBots) ListBots(_ context.Context, page, pageSize int64) ([]storage.Bot, int64, error) {
	return f.bots, int64(len(f.bots)), nil
}

type fakeMappings struct {
	mappings map[string]storage.Mapping
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{mappings: make(map[string]storage.Mapping)}
}

func (f *fakeMappings) key(address, chainType string) string { return address + "/" + chainType }

func (f *fakeMappings) GetMapping(_ context.Context, address, chainType string) (storage.Mapping, bool, error) {
	m, ok := f.mappings[f.key(address, chainType)]
	return m, ok, nil
}

func (f *fakeMappings) UpsertMapping(_ context.Context, address, chainType, telegramID string) error {
	key := f.key(address, chainType)
	m := f.mappings[key]
	m.Address = address
	m.ChainType = chainType
	m.TelegramID = telegramID
	f.mappings[key] = m
	return nil
}

func (f *fakeMappings) MarkBanned(_ context.Context, address, chainType string) error {
	key := f.key(address, chainType)
	m, ok := f.mappings[key]
	if !ok {
		return errors.New("mapping not found")
	}
	m.Banned = true
	f.mappings[key] = m
	return nil
}

type accessCall struct {
	botToken    string
	chatGroupID string
	telegramID  string
	allow       bool
}

type fakeNotifier struct {
	calls []accessCall
	err   error
}

func (f *fakeNotifier) SetMemberAccess(_ context.Context, botToken, chatGroupID, telegramID string, allow bool) error {
	f.calls = append(f.calls, accessCall{botToken, chatGroupID, telegramID, allow})
	return f.err
}

// fakeAdapter answers verification with a fixed address and balance.
type fakeAdapter struct {
	recovered string
	verifyErr error
	balance   uint64
}

func (f *fakeAdapter) Name() string { return "chainA" }

func (f *fakeAdapter) VerifySignature(challenge, signature string) (string, error) {
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	return f.recovered, nil
}

func (f *fakeAdapter) ShareBalance(_ context.Context, subject, user string) (uint64, error) {
	return f.balance, nil
}

var _ chain.Adapter = (*fakeAdapter)(nil)

func communityBot() storage.Bot {
	return storage.Bot{
		AgentName:      "alpha",
		BotToken:       "token123",
		ChatGroupID:    "-100987",
		SubjectAddress: "bbbb",
		ChainType:      "chainA",
	}
}

func authRequest() AuthRequest {
	return AuthRequest{
		Challenge:   "55555",
		ChatGroupID: "-100987",
		Signature:   "sig",
		User:        "0xAAAA",
		ChainType:   "chainA",
	}
}

func TestAuthorizeGrantsAccessForHolder(t *testing.T) {
	bots := &fakeBots{bots: []storage.Bot{communityBot()}}
	mappings := newFakeMappings()
	notifier := &fakeNotifier{}
	policy := NewPolicy(bots, mappings, notifier, zerolog.Nop())
	adapter := &fakeAdapter{recovered: "aaaa", balance: 3}

	if err := policy.Authorize(context.Background(), adapter, authRequest()); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	m, ok := mappings.mappings["aaaa/chainA"]
	if !ok || m.TelegramID != "55555" {
		t.Fatalf("mapping not stored: %+v", m)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(notifier.calls))
	}
	call := notifier.calls[0]
	if !call.allow || call.telegramID != "55555" || call.chatGroupID != "-100987" || call.botToken != "token123" {
		t.Fatalf("unexpected access call %+v", call)
	}
}

func TestAuthorizeZeroBalanceStoresMappingWithoutGrant(t *testing.T) {
	bots := &fakeBots{bots: []storage.Bot{communityBot()}}
	mappings := newFakeMappings()
	notifier := &fakeNotifier{}
	policy := NewPolicy(bots, mappings, notifier, zerolog.Nop())
	adapter := &fakeAdapter{recovered: "aaaa", balance: 0}

	if err := policy.Authorize(context.Background(), adapter, authRequest()); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	if _, ok := mappings.mappings["aaaa/chainA"]; !ok {
		t.Fatal("mapping should still be stored for zero balance")
	}
	if len(notifier.calls) != 0 {
		t.Fatal("zero balance must not touch the chat system")
	}
}

func TestAuthorizeAddressMismatch(t *testing.T) {
	bots := &fakeBots{bots: []storage.Bot{communityBot()}}
	mappings := newFakeMappings()
	policy := NewPolicy(bots, mappings, &fakeNotifier{}, zerolog.Nop())
	adapter := &fakeAdapter{recovered: "cccc", balance: 3}

	err := policy.Authorize(context.Background(), adapter, authRequest())
	if !errors.Is(err, ErrAddressMismatch) {
		t.Fatalf("got %v, want ErrAddressMismatch", err)
	}
	if len(mappings.mappings) != 0 {
		t.Fatal("mismatch must not store a mapping")
	}
}

func TestAuthorizeUnknownCommunity(t *testing.T) {
	policy := NewPolicy(&fakeBots{}, newFakeMappings(), &fakeNotifier{}, zerolog.Nop())
	adapter := &fakeAdapter{recovered: "aaaa", balance: 3}

	err := policy.Authorize(context.Background(), adapter, authRequest())
	if !errors.Is(err, ErrCommunityNotFound) {
		t.Fatalf("got %v, want ErrCommunityNotFound", err)
	}
}

func TestAuthorizeVerificationErrorPassesThrough(t *testing.T) {
	bots := &fakeBots{bots: []storage.Bot{communityBot()}}
	policy := NewPolicy(bots, newFakeMappings(), &fakeNotifier{}, zerolog.Nop())
	adapter := &fakeAdapter{verifyErr: chain.ErrMalformedSignature}

	err := policy.Authorize(context.Background(), adapter, authRequest())
	if !errors.Is(err, chain.ErrMalformedSignature) {
		t.Fatalf("got %v, want ErrMalformedSignature", err)
	}
}

func TestAuthorizeIsRepeatable(t *testing.T) {
	bots := &fakeBots{bots: []storage.Bot{communityBot()}}
	mappings := newFakeMappings()
	notifier := &fakeNotifier{}
	policy := NewPolicy(bots, mappings, notifier, zerolog.Nop())
	adapter := &fakeAdapter{recovered: "aaaa", balance: 3}

	for i := 0; i < 2; i++ {
		if err := policy.Authorize(context.Background(), adapter, authRequest()); err != nil {
			t.Fatalf("authorize attempt %d: %v", i, err)
		}
	}

	if len(mappings.mappings) != 1 {
		t.Fatalf("repeat stored %d mappings, want 1", len(mappings.mappings))
	}
	if len(notifier.calls) != 2 || notifier.calls[0] != notifier.calls[1] {
		t.Fatal("repeat should issue the identical grant again")
	}
}

func TestApplyDecisionRevokes(t *testing.T) {
	bots := &fakeBots{bots: []storage.Bot{communityBot()}}
	notifier := &fakeNotifier{}
	policy := NewPolicy(bots, newFakeMappings(), notifier, zerolog.Nop())

	err := policy.ApplyDecision(context.Background(), Decision{
		ChainType:  "chainA",
		Trader:     "aaaa",
		Subject:    "bbbb",
		TelegramID: "55555",
		Allow:      false,
	})
	if err != nil {
		t.Fatalf("apply decision: %v", err)
	}
	if len(notifier.calls) != 1 || notifier.calls[0].allow {
		t.Fatalf("expected one revoke call, got %+v", notifier.calls)
	}
}

func TestApplyDecisionUnknownSubjectIsDropped(t *testing.T) {
	notifier := &fakeNotifier{}
	policy := NewPolicy(&fakeBots{}, newFakeMappings(), notifier, zerolog.Nop())

	err := policy.ApplyDecision(context.Background(), Decision{
		ChainType: "chainA", Trader: "aaaa", Subject: "unknown", TelegramID: "55555",
	})
	if err != nil {
		t.Fatalf("decision for unknown subject must be a no-op, got %v", err)
	}
	if len(notifier.calls) != 0 {
		t.Fatal("unknown subject must not reach the chat system")
	}
}

func TestApplyDecisionNotifierFailurePropagates(t *testing.T) {
	bots := &fakeBots{bots: []storage.Bot{communityBot()}}
	notifier := &fakeNotifier{err: ErrNotifier}
	policy := NewPolicy(bots, newFakeMappings(), notifier, zerolog.Nop())

	err := policy.ApplyDecision(context.Background(), Decision{
		ChainType: "chainA", Trader: "aaaa", Subject: "bbbb", TelegramID: "55555", Allow: true,
	})
	if !errors.Is(err, ErrNotifier) {
		t.Fatalf("got %v, want ErrNotifier", err)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"0xABCDef", "abcdef"},
		{"  0xABCDef  ", "abcdef"},
		{"abcdef", "abcdef"},
		{"0X1234", "1234"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeAddress(tc.in); got != tc.want {
			t.Fatalf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
