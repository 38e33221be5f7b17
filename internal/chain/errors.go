package chain

import "errors"

var (
	// ErrMalformedSignature indicates the signature bytes could not be
	// decoded or have the wrong shape for the chain.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrRecoveryFailed indicates the curve operation rejected the
	// signature.
	ErrRecoveryFailed = errors.New("signature recovery failed")
)
