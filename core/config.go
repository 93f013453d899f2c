package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	MatcherTypeRandom      = "random"
	MatcherTypeAccumulator = "accumulator"

	DatabaseBackendBoltDb  = "boltdb"
	DatabaseBackendLevelDb = "leveldb"
)

type MatcherConfig struct {
	Type string `json:"type"`
	// hex encoded 64 bytes root extended public key, used by the random matcher
	RootXPub  string   `json:"rootXPub"`
	CacheSize int      `json:"cacheSize"`
	Addresses []string `json:"addresses"`
}

type DatabaseConfig struct {
	// boltdb or leveldb, empty disables the projection store
	Backend  string `json:"backend"`
	FilePath string `json:"filePath"`
}

type AppConfig struct {
	BlockSyncer  BlockSyncerConfig  `json:"blockSyncer"`
	WalletSyncer WalletSyncerConfig `json:"walletSyncer"`

	WalletID        string `json:"walletId"`
	GenesisHash     string `json:"genesisHash"`
	WalletLogDir    string `json:"walletLogDir"`
	EpochStorageDir string `json:"epochStorageDir"`

	Matcher  MatcherConfig  `json:"matcher"`
	Database DatabaseConfig `json:"database"`
	Logger   LoggerConfig   `json:"logger"`

	RefreshIntervalSec uint64 `json:"refreshIntervalSec"`
	// host:port of the prometheus endpoint, empty disables it
	MetricsAddress string `json:"metricsAddress"`
}

func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		BlockSyncer: BlockSyncerConfig{
			NetworkMagic: 764824073,
			NodeAddress:  "backbone.cardano-mainnet.iohk.io:3001",
			KeepAlive:    true,
		},
		WalletSyncer: WalletSyncerConfig{
			ConfirmationBlockCount: 10,
			EpochLength:            ByronMainnetEpochLength,
		},
		WalletID:        "default",
		WalletLogDir:    "data/wallets",
		EpochStorageDir: "data/epochs",
		Matcher: MatcherConfig{
			Type:      MatcherTypeAccumulator,
			CacheSize: defaultRandomMatcherCacheSize,
		},
		Database: DatabaseConfig{
			Backend:  DatabaseBackendBoltDb,
			FilePath: "data/wallet.db",
		},
		Logger: LoggerConfig{
			LogLevel: "info",
			Name:     "cardano-wallet",
		},
		RefreshIntervalSec: 60,
	}
}

// LoadAppConfig reads a json file on top of the default configuration
func LoadAppConfig(path string) (*AppConfig, error) {
	config := DefaultAppConfig()

	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	if err := json.Unmarshal(bytes, config); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *AppConfig) Validate() error {
	if c.WalletID == "" {
		return fmt.Errorf("wallet id is not specified")
	}

	if c.WalletLogDir == "" {
		return fmt.Errorf("wallet log directory is not specified")
	}

	if c.BlockSyncer.NodeAddress == "" {
		return fmt.Errorf("node address is not specified")
	}

	if c.WalletSyncer.EpochLength == 0 {
		return fmt.Errorf("epoch length must be positive")
	}

	switch strings.ToLower(c.Database.Backend) {
	case "":
	case DatabaseBackendBoltDb, DatabaseBackendLevelDb:
		if c.Database.FilePath == "" {
			return fmt.Errorf("database file path is not specified")
		}
	default:
		return fmt.Errorf("unsupported database backend: %s", c.Database.Backend)
	}

	if c.RefreshIntervalSec == 0 {
		return fmt.Errorf("refresh interval must be positive")
	}

	if _, err := c.GetGenesisHash(); err != nil {
		return err
	}

	return nil
}

func (c *AppConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSec) * time.Second
}

func (c *AppConfig) GetGenesisHash() (Hash32, error) {
	if c.GenesisHash == "" {
		return Hash32{}, nil
	}

	return NewHash32FromHex(c.GenesisHash)
}

func (c *AppConfig) InitialStatePtr() (StatePtr, error) {
	hash, err := c.GetGenesisHash()
	if err != nil {
		return StatePtr{}, err
	}

	return NewStatePtrBeforeGenesis(hash), nil
}

func NewMatcherFromConfig(config MatcherConfig) (AddressMatcher, error) {
	switch strings.ToLower(config.Type) {
	case MatcherTypeRandom:
		rootXPub, err := hex.DecodeString(config.RootXPub)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid root xpub: %w", ErrAddressDerivation, err)
		}

		matcher, err := NewRandomDerivationMatcher(rootXPub, config.CacheSize)
		if err != nil {
			return nil, err
		}

		return matcher, nil
	case MatcherTypeAccumulator:
		return NewAccumulatorMatcher(config.Addresses), nil
	default:
		return nil, fmt.Errorf("unsupported matcher type: %s", config.Type)
	}
}
