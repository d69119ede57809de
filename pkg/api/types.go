package api

// Request/response types for REST endpoints and WebSocket messages.

// ==============================
// REST Response Types
// ==============================

// ListingInfo is the public view of a listing.
type ListingInfo struct {
	ID     uint64 `json:"id"`
	Seller string `json:"seller"`
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
	Price  int64  `json:"price"`
	Active bool   `json:"active"`
}

// EscrowInfo reports a seller's accrued settlement balance.
type EscrowInfo struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

// CreateListingResponse is returned from listing submission.
type CreateListingResponse struct {
	ListingID uint64 `json:"listingId"`
}

// PurchaseResponse echoes what the buyer received.
type PurchaseResponse struct {
	ListingID uint64 `json:"listingId"`
	Seller    string `json:"seller"`
	Asset     string `json:"asset"`
	Amount    int64  `json:"amount"`
}

// WithdrawResponse reports the amount paid out.
type WithdrawResponse struct {
	Amount int64 `json:"amount"`
}

// AuthorizeResponse is the standalone verifier outcome.
type AuthorizeResponse struct {
	Authorized bool `json:"authorized"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// REST Request Types
// ==============================

// SignedRequest carries the authorization fields shared by all mutating
// endpoints. The signature covers {participant, nonce, deadline} under the
// server's signing domain (EIP-712).
type SignedRequest struct {
	Participant string `json:"participant"` // Hex address of the consenting party
	Nonce       uint64 `json:"nonce"`
	Deadline    int64  `json:"deadline"`  // Unix seconds
	Signature   string `json:"signature"` // Hex, 65 bytes
}

// CreateListingRequest is the payload for POST /api/v1/listings.
// The participant is the seller.
type CreateListingRequest struct {
	SignedRequest
	Asset  string `json:"asset"` // Hex address of the asset being sold
	Amount int64  `json:"amount"`
	Price  int64  `json:"price"`
}

// PurchaseRequest is the payload for POST /api/v1/purchase.
// The participant is the buyer; payment travels out of band of the listing.
type PurchaseRequest struct {
	SignedRequest
	ListingID uint64 `json:"listingId"`
	Payment   int64  `json:"payment"`
}

// WithdrawRequest is the payload for POST /api/v1/withdraw.
// The participant is the seller withdrawing accrued proceeds.
type WithdrawRequest struct {
	SignedRequest
}

// FaucetRequest mints devnet funds into the reference bank.
type FaucetRequest struct {
	Holder string `json:"holder"`
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to manage channel subscriptions.
// Channels: "events" (all), or "events:ItemListed", "events:ItemPurchased",
// "events:FundsWithdrawn".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
