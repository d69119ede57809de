package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyuksoo-dev/bazaar/pkg/crypto"
	"github.com/hyuksoo-dev/bazaar/pkg/util"
)

var (
	// ErrSignatureExpired means the request deadline is in the past.
	ErrSignatureExpired = errors.New("signature expired")
	// ErrMalformedSignature means the signature is not a well-formed 65-byte recoverable signature.
	ErrMalformedSignature = errors.New("malformed signature")
	// ErrInvalidSignature means the recovered signer does not match the claimed participant.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Request is a signed, typed payload proving a participant's consent to an
// action without requiring a live call from that participant. Constructed
// per call, never persisted.
type Request struct {
	Participant common.Address `json:"participant"`
	Nonce       uint64         `json:"nonce"`
	Deadline    int64          `json:"deadline"`  // Unix seconds
	Signature   []byte         `json:"signature"` // 65-byte [R || S || V]
}

// Verifier validates authorization requests against a fixed signing domain.
//
// The verifier is state-free: it does not record consumed nonces, so a
// signature remains replayable until its deadline passes. Callers that need
// genuine replay safety must track (participant, nonce) pairs themselves.
type Verifier struct {
	signer *crypto.EIP712Signer
	clock  util.Clock
}

// NewVerifier creates a verifier bound to the given domain.
func NewVerifier(domain crypto.EIP712Domain, clock util.Clock) *Verifier {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Verifier{
		signer: crypto.NewEIP712Signer(domain),
		clock:  clock,
	}
}

// Verify checks a signed authorization request. Returns nil only if the
// deadline has not passed, the signature is well-formed, and the recovered
// signer equals the claimed participant.
func (v *Verifier) Verify(req *Request) error {
	if v.clock.Now().Unix() > req.Deadline {
		return ErrSignatureExpired
	}

	if len(req.Signature) != 65 {
		return fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrMalformedSignature, len(req.Signature))
	}

	auth := &crypto.AuthorizationEIP712{
		Participant: req.Participant,
		Nonce:       new(big.Int).SetUint64(req.Nonce),
		Deadline:    big.NewInt(req.Deadline),
	}

	recovered, err := v.signer.RecoverAuthorizationSigner(auth, req.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	if recovered != req.Participant {
		return ErrInvalidSignature
	}

	return nil
}

// Authorize reports the verifier's outcome as a boolean. No side effects.
func (v *Verifier) Authorize(participant common.Address, nonce uint64, deadline int64, signature []byte) bool {
	return v.Verify(&Request{
		Participant: participant,
		Nonce:       nonce,
		Deadline:    deadline,
		Signature:   signature,
	}) == nil
}

// DecodeSignature decodes a hex-encoded signature (with or without 0x prefix)
// and enforces the 65-byte recoverable format.
func DecodeSignature(sig string) ([]byte, error) {
	sig = strings.TrimPrefix(sig, "0x")

	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex: %v", ErrMalformedSignature, err)
	}

	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrMalformedSignature, len(sigBytes))
	}

	return sigBytes, nil
}
