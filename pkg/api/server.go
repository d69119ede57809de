package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/hyuksoo-dev/bazaar/pkg/auth"
	"github.com/hyuksoo-dev/bazaar/pkg/market"
)

// Server exposes the ledger over REST plus a WebSocket event stream.
type Server struct {
	market *market.Market
	bank   *market.Bank // Devnet faucet target; nil outside devnet
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger

	allowedOrigins []string
}

// ServerConfig wires the API server's collaborators.
type ServerConfig struct {
	Market         *market.Market
	Bank           *market.Bank // Optional: enables POST /api/v1/faucet
	AllowedOrigins []string
	Logger         *zap.SugaredLogger
}

// NewServer creates an API server and subscribes its WebSocket hub to the
// ledger's notification log.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	s := &Server{
		market:         cfg.Market,
		bank:           cfg.Bank,
		router:         mux.NewRouter(),
		hub:            NewHub(),
		log:            cfg.Logger,
		allowedOrigins: cfg.AllowedOrigins,
	}

	s.market.SubscribeEvents(s.hub.BroadcastEvent)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Listing endpoints
	api.HandleFunc("/listings", s.handleGetListings).Methods("GET")
	api.HandleFunc("/listings/{id}", s.handleGetListing).Methods("GET")
	api.HandleFunc("/listings", s.handleCreateListing).Methods("POST")
	api.HandleFunc("/purchase", s.handlePurchase).Methods("POST")

	// Escrow endpoints
	api.HandleFunc("/escrow/{address}", s.handleGetEscrow).Methods("GET")
	api.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")

	// Standalone authorization check
	api.HandleFunc("/authorize", s.handleAuthorize).Methods("POST")

	// Devnet faucet
	if s.bank != nil {
		api.HandleFunc("/faucet", s.handleFaucet).Methods("POST")
	}

	// WebSocket event stream
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the HTTP server. Blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetListings(w http.ResponseWriter, r *http.Request) {
	listings := s.market.ActiveListings()

	response := make([]ListingInfo, len(listings))
	for i, l := range listings {
		response[i] = listingInfo(l)
	}

	respondJSON(w, response)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid listing id", err.Error())
		return
	}

	listing, err := s.market.Listing(id)
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	respondJSON(w, listingInfo(listing))
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	authReq, ok := s.decodeAuth(w, req.SignedRequest)
	if !ok {
		return
	}

	if !common.IsHexAddress(req.Asset) {
		respondError(w, http.StatusBadRequest, "invalid asset address", "")
		return
	}

	id, err := s.market.ListItem(authReq, common.HexToAddress(req.Asset), req.Amount, req.Price)
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	respondJSON(w, CreateListingResponse{ListingID: id})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	authReq, ok := s.decodeAuth(w, req.SignedRequest)
	if !ok {
		return
	}

	bought, err := s.market.PurchaseItem(authReq, req.ListingID, req.Payment)
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	respondJSON(w, PurchaseResponse{
		ListingID: bought.ID,
		Seller:    bought.Seller.Hex(),
		Asset:     bought.Asset.Hex(),
		Amount:    bought.Amount,
	})
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addressStr := vars["address"]

	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	addr := common.HexToAddress(addressStr)
	respondJSON(w, EscrowInfo{
		Address: addr.Hex(),
		Balance: s.market.EscrowBalance(addr),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	authReq, ok := s.decodeAuth(w, req.SignedRequest)
	if !ok {
		return
	}

	amount, err := s.market.WithdrawFunds(authReq)
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	respondJSON(w, WithdrawResponse{Amount: amount})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req SignedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if !common.IsHexAddress(req.Participant) {
		respondError(w, http.StatusBadRequest, "invalid participant address", "")
		return
	}

	sig, err := auth.DecodeSignature(req.Signature)
	if err != nil {
		// Malformed input still yields a definite "not authorized" answer.
		respondJSON(w, AuthorizeResponse{Authorized: false})
		return
	}

	authorized := s.market.AuthorizeWithSignature(
		common.HexToAddress(req.Participant), req.Nonce, req.Deadline, sig)
	respondJSON(w, AuthorizeResponse{Authorized: authorized})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if !common.IsHexAddress(req.Holder) || !common.IsHexAddress(req.Asset) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	if err := s.bank.Mint(common.HexToAddress(req.Holder), common.HexToAddress(req.Asset), req.Amount); err != nil {
		respondError(w, http.StatusBadRequest, "mint failed", err.Error())
		return
	}

	s.log.Infow("faucet_minted", "holder", req.Holder, "asset", req.Asset, "amount", req.Amount)
	respondJSON(w, map[string]string{"status": "minted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// decodeAuth validates the shared authorization fields of a signed request.
// Writes the error response itself when validation fails.
func (s *Server) decodeAuth(w http.ResponseWriter, req SignedRequest) (*auth.Request, bool) {
	if !common.IsHexAddress(req.Participant) {
		respondError(w, http.StatusBadRequest, "invalid participant address", "")
		return nil, false
	}

	sig, err := auth.DecodeSignature(req.Signature)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed signature", err.Error())
		return nil, false
	}

	return &auth.Request{
		Participant: common.HexToAddress(req.Participant),
		Nonce:       req.Nonce,
		Deadline:    req.Deadline,
		Signature:   sig,
	}, true
}

func listingInfo(l market.Listing) ListingInfo {
	return ListingInfo{
		ID:     l.ID,
		Seller: l.Seller.Hex(),
		Asset:  l.Asset.Hex(),
		Amount: l.Amount,
		Price:  l.Price,
		Active: l.Active,
	}
}

// respondLedgerError maps the ledger's error taxonomy onto HTTP statuses.
// Each failure kind keeps its distinct name in the response body.
func respondLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrListingNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrListingInactive):
		status = http.StatusConflict
	case errors.Is(err, market.ErrInsufficientPayment):
		status = http.StatusPaymentRequired
	case errors.Is(err, market.ErrNoFunds):
		status = http.StatusConflict
	case errors.Is(err, market.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrTransferFailed):
		status = http.StatusBadGateway
	case errors.Is(err, auth.ErrSignatureExpired),
		errors.Is(err, auth.ErrInvalidSignature),
		errors.Is(err, auth.ErrMalformedSignature):
		status = http.StatusUnauthorized
	}

	respondError(w, status, errorName(err), err.Error())
}

// errorName reports the taxonomy kind an error belongs to.
func errorName(err error) string {
	switch {
	case errors.Is(err, market.ErrListingNotFound):
		return "ListingNotFound"
	case errors.Is(err, market.ErrListingInactive):
		return "ListingInactive"
	case errors.Is(err, market.ErrInsufficientPayment):
		return "InsufficientPayment"
	case errors.Is(err, market.ErrNoFunds):
		return "NoFunds"
	case errors.Is(err, market.ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, market.ErrTransferFailed):
		return "TransferFailed"
	case errors.Is(err, auth.ErrSignatureExpired):
		return "SignatureExpired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "InvalidSignature"
	case errors.Is(err, auth.ErrMalformedSignature):
		return "MalformedSignature"
	default:
		return "InternalError"
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
