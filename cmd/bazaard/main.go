package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyuksoo-dev/bazaar/params"
	"github.com/hyuksoo-dev/bazaar/pkg/api"
	"github.com/hyuksoo-dev/bazaar/pkg/auth"
	"github.com/hyuksoo-dev/bazaar/pkg/crypto"
	"github.com/hyuksoo-dev/bazaar/pkg/market"
	"github.com/hyuksoo-dev/bazaar/pkg/p2p"
	"github.com/hyuksoo-dev/bazaar/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Signing domain ----
	domain := crypto.EIP712Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           big.NewInt(cfg.Domain.ChainID),
		VerifyingContract: common.HexToAddress(cfg.Domain.VerifyingContract),
	}
	verifier := auth.NewVerifier(domain, util.RealClock{})

	// ---- Persistence ----
	var store *market.Store
	if cfg.Node.DataDir != "" {
		store, err = market.NewStore(cfg.Node.DataDir)
		if err != nil {
			sugar.Fatalw("store_open_failed", "dir", cfg.Node.DataDir, "err", err)
		}
		defer store.Close()
	}

	// ---- Asset gateway ----
	// The in-memory bank serves devnets; real deployments plug a chain-backed
	// Gateway in its place.
	bank := market.NewBank(common.HexToAddress(cfg.Ledger.CustodyAddress))

	// ---- Ledger ----
	m, err := market.New(market.Config{
		Gateway:    bank,
		Settlement: common.HexToAddress(cfg.Ledger.SettlementAsset),
		Verifier:   verifier,
		Store:      store,
		Logger:     sugar,
		Clock:      util.RealClock{},
	})
	if err != nil {
		sugar.Fatalw("market_init_failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Notification gossip (optional) ----
	if cfg.P2P.Enabled {
		pub, err := p2p.NewPublisher(ctx, p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Bootstrap:  cfg.P2P.Bootstrap,
			Topic:      cfg.P2P.Topic,
			Logger:     sugar,
		})
		if err != nil {
			sugar.Fatalw("p2p_init_failed", "err", err)
		}
		defer pub.Close()
		m.SubscribeEvents(pub.Enqueue)
	}

	// ---- API server ----
	var faucetBank *market.Bank
	if cfg.Node.Devnet {
		faucetBank = bank
	}

	apiServer := api.NewServer(api.ServerConfig{
		Market:         m,
		Bank:           faucetBank,
		AllowedOrigins: cfg.API.AllowedOrigins,
		Logger:         sugar,
	})

	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_started",
		"domain", cfg.Domain.Name,
		"chain_id", cfg.Domain.ChainID,
		"api_addr", cfg.API.Addr,
		"devnet", cfg.Node.Devnet,
		"p2p", cfg.P2P.Enabled,
		"listings", m.Count())

	<-ctx.Done()
	sugar.Info("shutting down")
}
