package evm

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"shares-gate/internal/chain"
)

const testContract = "0x1e70972ec6c8a3fae3ac34c9f3818ec46eb3bd5d"

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := New(Options{Name: "monad", ContractAddress: testContract}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestNewRejectsBadContractAddress(t *testing.T) {
	if _, err := New(Options{ContractAddress: "not-an-address"}, zerolog.Nop()); err == nil {
		t.Fatal("expected invalid contract address error")
	}
}

func TestBootstrapStartsAtConfiguredBlock(t *testing.T) {
	adapter, err := New(Options{ContractAddress: testContract, StartBlock: 123456}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	cp := adapter.Bootstrap()
	if cp.Position != 123456 || cp.ChainType != "monad" {
		t.Fatalf("bootstrap checkpoint %+v", cp)
	}
}

func TestVerifySignatureRecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	want := strings.ToLower(hex.EncodeToString(crypto.PubkeyToAddress(key.PublicKey).Bytes()))

	challenge := "login-nonce-42"
	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	adapter := newTestAdapter(t)

	got, err := adapter.VerifySignature(challenge, hex.EncodeToString(sig))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != want {
		t.Fatalf("recovered %s, want %s", got, want)
	}

	// Wallets ship the legacy V encoding; both forms must recover.
	legacy := make([]byte, len(sig))
	copy(legacy, sig)
	legacy[crypto.RecoveryIDOffset] += 27
	got, err = adapter.VerifySignature(challenge, "0x"+hex.EncodeToString(legacy))
	if err != nil {
		t.Fatalf("verify legacy V: %v", err)
	}
	if got != want {
		t.Fatalf("legacy V recovered %s, want %s", got, want)
	}
}

func TestVerifySignatureDifferentChallengeDifferentSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := strings.ToLower(hex.EncodeToString(crypto.PubkeyToAddress(key.PublicKey).Bytes()))

	sig, err := crypto.Sign(accounts.TextHash([]byte("challenge-a")), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	adapter := newTestAdapter(t)
	got, err := adapter.VerifySignature("challenge-b", hex.EncodeToString(sig))
	if err == nil && got == signer {
		t.Fatal("signature must not verify against a different challenge")
	}
}

func TestVerifySignatureMalformedInputs(t *testing.T) {
	adapter := newTestAdapter(t)

	cases := []struct {
		name string
		sig  string
	}{
		{"not hex", "zzzz"},
		{"too short", hex.EncodeToString(make([]byte, 64))},
		{"too long", hex.EncodeToString(make([]byte, 66))},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := adapter.VerifySignature("challenge", tc.sig)
			if !errors.Is(err, chain.ErrMalformedSignature) {
				t.Fatalf("got %v, want ErrMalformedSignature", err)
			}
		})
	}
}

func TestVerifySignatureInvalidRecoveryID(t *testing.T) {
	adapter := newTestAdapter(t)

	sig := make([]byte, crypto.SignatureLength)
	sig[crypto.RecoveryIDOffset] = 5
	if _, err := adapter.VerifySignature("challenge", hex.EncodeToString(sig)); !errors.Is(err, chain.ErrRecoveryFailed) {
		t.Fatalf("got %v, want ErrRecoveryFailed", err)
	}
}

func TestDecodeTrade(t *testing.T) {
	trader := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	subject := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	data, err := tradeABI.Events["Trade"].Inputs.Pack(
		trader,
		subject,
		true,
		big.NewInt(3),
		big.NewInt(1000),
		big.NewInt(50),
		big.NewInt(50),
		big.NewInt(10),
	)
	if err != nil {
		t.Fatalf("pack trade data: %v", err)
	}

	lg := types.Log{
		Data:   data,
		Topics: []common.Hash{tradeTopic},
		TxHash: common.HexToHash("0x01"),
		Index:  7,
	}

	adapter := newTestAdapter(t)
	ev, err := adapter.decodeTrade(lg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if ev.Trader != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Fatalf("trader = %s", ev.Trader)
	}
	if ev.Subject != "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Fatalf("subject = %s", ev.Subject)
	}
	if !ev.IsBuy {
		t.Fatal("isBuy should be true")
	}
	if !ev.Amount.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("amount = %s", ev.Amount)
	}
	if ev.LogIndex != 7 {
		t.Fatalf("log index = %d", ev.LogIndex)
	}
	if ev.ChainType != "monad" {
		t.Fatalf("chain type = %s", ev.ChainType)
	}
}

func TestDecodeTradeRejectsTruncatedData(t *testing.T) {
	adapter := newTestAdapter(t)
	if _, err := adapter.decodeTrade(types.Log{Data: []byte{0x01, 0x02}}); err == nil {
		t.Fatal("expected unpack error for truncated data")
	}
}
