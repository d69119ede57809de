package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Domain pins the signing context. Signatures produced for one
// name/version/chain/contract tuple never verify against another.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string // Hex address; zero address for off-chain signing
}

type Node struct {
	DataDir string // Pebble database directory; empty disables persistence
	LogFile string
	Devnet  bool // Enables the bank faucet endpoint
}

type Ledger struct {
	SettlementAsset string // Hex address of the settlement currency
	CustodyAddress  string // Hex address of the escrow vault account
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type P2P struct {
	Enabled    bool
	ListenAddr string
	Bootstrap  []string
	Topic      string
}

type Config struct {
	Domain Domain
	Node   Node
	Ledger Ledger
	API    API
	P2P    P2P
}

func Default() Config {
	return Config{
		Domain: Domain{
			Name:              "Bazaar",
			Version:           "1",
			ChainID:           1337, // Local dev chain
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Node: Node{
			DataDir: "data/bazaar",
			LogFile: "data/bazaar.log",
			Devnet:  true,
		},
		Ledger: Ledger{
			// Devnet settlement currency and vault; override for real deployments.
			SettlementAsset: "0x0000000000000000000000000000000000000001",
			CustodyAddress:  "0x00000000000000000000000000000000000Ba2a0",
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		P2P: P2P{
			Enabled:    false,
			ListenAddr: "",
			Bootstrap:  nil,
			Topic:      "bazaar-events",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if it exists) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if name := os.Getenv("DOMAIN_NAME"); name != "" {
		cfg.Domain.Name = name
	}
	if version := os.Getenv("DOMAIN_VERSION"); version != "" {
		cfg.Domain.Version = version
	}
	if chainID := os.Getenv("CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseInt(chainID, 10, 64); err == nil {
			cfg.Domain.ChainID = id
		}
	}
	if contract := os.Getenv("VERIFYING_CONTRACT"); contract != "" {
		cfg.Domain.VerifyingContract = contract
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.Node.DataDir = dataDir
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Node.LogFile = logFile
	}
	if devnet := os.Getenv("DEVNET"); devnet != "" {
		cfg.Node.Devnet = devnet == "true"
	}

	if asset := os.Getenv("SETTLEMENT_ASSET"); asset != "" {
		cfg.Ledger.SettlementAsset = asset
	}
	if custody := os.Getenv("CUSTODY_ADDRESS"); custody != "" {
		cfg.Ledger.CustodyAddress = custody
	}

	if addr := os.Getenv("API_ADDR"); addr != "" {
		cfg.API.Addr = addr
	}
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}

	if enabled := os.Getenv("P2P_ENABLED"); enabled != "" {
		cfg.P2P.Enabled = enabled == "true"
	}
	if listen := os.Getenv("P2P_LISTEN"); listen != "" {
		cfg.P2P.ListenAddr = listen
	}
	if bootstrap := os.Getenv("P2P_BOOTSTRAP"); bootstrap != "" {
		cfg.P2P.Bootstrap = strings.Split(bootstrap, ",")
	}
	if topic := os.Getenv("P2P_TOPIC"); topic != "" {
		cfg.P2P.Topic = topic
	}

	return cfg
}
