package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/hyuksoo-dev/bazaar/pkg/auth"
	"github.com/hyuksoo-dev/bazaar/pkg/crypto"
	"github.com/hyuksoo-dev/bazaar/pkg/util"
)

// Signs an authorization request for the Bazaar ledger and prints the JSON
// body to POST. Set PRIVATE_KEY to reuse a key; otherwise a fresh one is
// generated.
func main() {
	var signer *crypto.Signer
	var err error

	if hexKey := os.Getenv("PRIVATE_KEY"); hexKey != "" {
		signer, err = crypto.FromPrivateKeyHex(hexKey)
		if err != nil {
			fmt.Printf("Error parsing PRIVATE_KEY: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}

	fmt.Printf("Address: %s\n\n", signer.Address().Hex())

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		fmt.Printf("Error generating nonce: %v\n", err)
		os.Exit(1)
	}
	deadline := time.Now().Add(1 * time.Hour).Unix()

	authPayload := &crypto.AuthorizationEIP712{
		Participant: signer.Address(),
		Nonce:       new(big.Int).SetUint64(nonce),
		Deadline:    big.NewInt(deadline),
	}

	eip712Signer := crypto.NewEIP712Signer(crypto.DefaultDomain())

	typedJSON, err := eip712Signer.AuthorizationToJSON(authPayload)
	if err != nil {
		fmt.Printf("Error building typed data: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Typed data (eth_signTypedData_v4):")
	fmt.Println(typedJSON)
	fmt.Println()

	signature, err := eip712Signer.SignAuthorization(signer, authPayload)
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Signature: 0x%x\n\n", signature)

	// Sanity check before printing the request body
	verifier := auth.NewVerifier(crypto.DefaultDomain(), util.RealClock{})
	if !verifier.Authorize(signer.Address(), nonce, deadline, signature) {
		fmt.Println("Signature did not verify")
		os.Exit(1)
	}

	body := map[string]interface{}{
		"participant": signer.Address().Hex(),
		"nonce":       nonce,
		"deadline":    deadline,
		"signature":   fmt.Sprintf("0x%x", signature),
	}
	bodyJSON, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Authorization request body:")
	fmt.Println(string(bodyJSON))
	fmt.Println()
	fmt.Println("Use these fields in POST /api/v1/listings, /purchase, /withdraw,")
	fmt.Println("or verify standalone via POST /api/v1/authorize")
}
