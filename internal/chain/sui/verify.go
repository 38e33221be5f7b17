package sui

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"shares-gate/internal/chain"
)

const (
	// serializedSignatureLen is flag (1) + signature (64) + pubkey (32).
	serializedSignatureLen = 1 + ed25519.SignatureSize + ed25519.PublicKeySize

	schemeED25519 = 0x00
)

// intentPersonalMessage prefixes signed personal messages: scope 3
// (PersonalMessage), version 0, app id 0.
var intentPersonalMessage = []byte{3, 0, 0}

// verifyPersonalMessage checks an ed25519 personal-message signature in the
// chain's base64 flag||sig||pubkey serialisation and returns the signer
// address (lowercase hex, no 0x): blake2b-256 over flag||pubkey.
func verifyPersonalMessage(challenge, signature string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", chain.ErrMalformedSignature, err)
	}
	if len(raw) != serializedSignatureLen {
		return "", fmt.Errorf("%w: serialized signature must be %d bytes, got %d", chain.ErrMalformedSignature, serializedSignatureLen, len(raw))
	}
	if raw[0] != schemeED25519 {
		return "", fmt.Errorf("%w: unsupported signature scheme 0x%02x", chain.ErrMalformedSignature, raw[0])
	}

	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])

	digest := signingDigest(challenge)
	if !ed25519.Verify(pub, digest, sig) {
		return "", chain.ErrRecoveryFailed
	}

	return addressFromPublicKey(pub), nil
}

func signingDigest(challenge string) []byte {
	payload := make([]byte, 0, len(intentPersonalMessage)+len(challenge))
	payload = append(payload, intentPersonalMessage...)
	payload = append(payload, []byte(challenge)...)
	digest := blake2b.Sum256(payload)
	return digest[:]
}

func addressFromPublicKey(pub ed25519.PublicKey) string {
	material := make([]byte, 0, 1+len(pub))
	material = append(material, schemeED25519)
	material = append(material, pub...)
	addr := blake2b.Sum256(material)
	return hex.EncodeToString(addr[:])
}
