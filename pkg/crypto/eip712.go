package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain is the domain separator for typed-data signing.
// Binding the digest to name/version/chain/contract prevents a signature
// produced for one deployment from being replayed against another.
type EIP712Domain struct {
	Name              string         // System name (e.g., "Bazaar")
	Version           string         // Protocol version (e.g., "1")
	ChainID           *big.Int       // Execution context id
	VerifyingContract common.Address // Verifying endpoint (zero for off-chain)
}

// AuthorizationEIP712 is the typed payload a participant signs to consent
// to a ledger action without submitting the call themselves.
type AuthorizationEIP712 struct {
	Participant common.Address // Who is granting consent
	Nonce       *big.Int       // Caller-chosen nonce
	Deadline    *big.Int       // Expiration timestamp (Unix seconds)
}

// EIP712Signer hashes and verifies authorization payloads under a fixed domain.
type EIP712Signer struct {
	domain EIP712Domain
}

// NewEIP712Signer creates a typed-data signer bound to the given domain.
func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// DefaultDomain returns the default signing domain for the Bazaar ledger.
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "Bazaar",
		Version:           "1",
		ChainID:           big.NewInt(1337), // Local dev chain
		VerifyingContract: common.Address{}, // Zero address for off-chain signing
	}
}

func (e *EIP712Signer) typedData(auth *AuthorizationEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Authorization": []apitypes.Type{
				{Name: "participant", Type: "address"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Authorization",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"participant": auth.Participant.Hex(),
			"nonce":       auth.Nonce.String(),
			"deadline":    auth.Deadline.String(),
		},
	}
}

// HashAuthorization computes the EIP-712 digest for an authorization payload.
// The encoding is order-stable: two implementations given the same logical
// inputs produce byte-identical digests.
func (e *EIP712Signer) HashAuthorization(auth *AuthorizationEIP712) ([]byte, error) {
	typedData := e.typedData(auth)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	digest := crypto.Keccak256Hash(rawData)

	return digest.Bytes(), nil
}

// SignAuthorization signs an authorization payload with the given key.
func (e *EIP712Signer) SignAuthorization(signer *Signer, auth *AuthorizationEIP712) ([]byte, error) {
	hash, err := e.HashAuthorization(auth)
	if err != nil {
		return nil, fmt.Errorf("failed to hash authorization: %w", err)
	}

	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	return signature, nil
}

// RecoverAuthorizationSigner recovers the address that signed an authorization payload.
func (e *EIP712Signer) RecoverAuthorizationSigner(auth *AuthorizationEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashAuthorization(auth)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash authorization: %w", err)
	}

	return RecoverAddress(hash, signature)
}

// AuthorizationToJSON renders the payload in eth_signTypedData_v4 format so
// MetaMask and other wallets can sign it directly.
func (e *EIP712Signer) AuthorizationToJSON(auth *AuthorizationEIP712) (string, error) {
	typedData := map[string]interface{}{
		"types": map[string]interface{}{
			"EIP712Domain": []map[string]string{
				{"name": "name", "type": "string"},
				{"name": "version", "type": "string"},
				{"name": "chainId", "type": "uint256"},
				{"name": "verifyingContract", "type": "address"},
			},
			"Authorization": []map[string]string{
				{"name": "participant", "type": "address"},
				{"name": "nonce", "type": "uint256"},
				{"name": "deadline", "type": "uint256"},
			},
		},
		"primaryType": "Authorization",
		"domain": map[string]interface{}{
			"name":              e.domain.Name,
			"version":           e.domain.Version,
			"chainId":           e.domain.ChainID.String(),
			"verifyingContract": e.domain.VerifyingContract.Hex(),
		},
		"message": map[string]interface{}{
			"participant": auth.Participant.Hex(),
			"nonce":       auth.Nonce.String(),
			"deadline":    auth.Deadline.String(),
		},
	}

	jsonBytes, err := json.MarshalIndent(typedData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return string(jsonBytes), nil
}
