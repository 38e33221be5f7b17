package sui

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"

	"shares-gate/internal/chain"
)

func signChallenge(t *testing.T, challenge string) (string, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	sig := ed25519.Sign(priv, signingDigest(challenge))

	serialized := make([]byte, 0, serializedSignatureLen)
	serialized = append(serialized, schemeED25519)
	serialized = append(serialized, sig...)
	serialized = append(serialized, pub...)

	return base64.StdEncoding.EncodeToString(serialized), addressFromPublicKey(pub)
}

func TestVerifyPersonalMessageRoundTrip(t *testing.T) {
	challenge := "login-nonce-42"
	signature, wantAddr := signChallenge(t, challenge)

	got, err := verifyPersonalMessage(challenge, signature)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != wantAddr {
		t.Fatalf("address = %s, want %s", got, wantAddr)
	}
	if len(got) != 64 {
		t.Fatalf("address length = %d, want 64 hex chars", len(got))
	}
}

func TestVerifyPersonalMessageWrongChallenge(t *testing.T) {
	signature, _ := signChallenge(t, "challenge-a")

	if _, err := verifyPersonalMessage("challenge-b", signature); !errors.Is(err, chain.ErrRecoveryFailed) {
		t.Fatalf("got %v, want ErrRecoveryFailed", err)
	}
}

func TestVerifyPersonalMessageCorruptedSignature(t *testing.T) {
	signature, _ := signChallenge(t, "challenge")

	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[10] ^= 0xff

	if _, err := verifyPersonalMessage("challenge", base64.StdEncoding.EncodeToString(raw)); !errors.Is(err, chain.ErrRecoveryFailed) {
		t.Fatalf("got %v, want ErrRecoveryFailed", err)
	}
}

func TestVerifyPersonalMessageMalformedInputs(t *testing.T) {
	cases := []struct {
		name string
		sig  string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"too short", base64.StdEncoding.EncodeToString(make([]byte, 64))},
		{"too long", base64.StdEncoding.EncodeToString(make([]byte, serializedSignatureLen+1))},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := verifyPersonalMessage("challenge", tc.sig); !errors.Is(err, chain.ErrMalformedSignature) {
				t.Fatalf("got %v, want ErrMalformedSignature", err)
			}
		})
	}
}

func TestVerifyPersonalMessageUnsupportedScheme(t *testing.T) {
	raw := make([]byte, serializedSignatureLen)
	raw[0] = 0x01 // secp256k1 flag

	if _, err := verifyPersonalMessage("challenge", base64.StdEncoding.EncodeToString(raw)); !errors.Is(err, chain.ErrMalformedSignature) {
		t.Fatalf("got %v, want ErrMalformedSignature", err)
	}
}
