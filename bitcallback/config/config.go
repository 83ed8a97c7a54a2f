// Package config loads bitcallbackd's settings from command-line flags and
// an optional TOML file.
package config

import (
	"bufio"
	"os"
	"reflect"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/naoina/toml"
)

// Config is every setting bitcallbackd needs, sourced from flags, an
// optional config file, or defaults, in that order of precedence.
type Config struct {
	ConfigFile string `long:"configfile" description:"path to a TOML config file"`

	BitcoindURL        string `long:"bitcoind_url" toml:"BitcoindURL" description:"bitcoind JSON-RPC endpoint"`
	BitcoindUser       string `long:"bitcoind_user" toml:"BitcoindUser" description:"bitcoind RPC username"`
	BitcoindPass       string `long:"bitcoind_pass" toml:"BitcoindPass" description:"bitcoind RPC password"`
	BitcoindDisableTLS bool   `long:"bitcoind_disabletls" toml:"BitcoindDisableTLS" description:"disable TLS for the bitcoind RPC connection"`

	Chain               string `long:"chain" toml:"Chain" description:"mainnet, testnet, or regtest"`
	Confirmations       int32  `long:"confirmations" toml:"Confirmations" description:"confirmations required before a transaction is reported"`
	StartBlock          int32  `long:"start_block" toml:"StartBlock" description:"starting block height, or a non-positive offset from the chain tip"`
	ReloadSubscriptions bool   `long:"reload_subscriptions" toml:"ReloadSubscriptions" description:"reload active subscriptions from the store on startup"`
	CacheCapacity       int    `long:"cache_capacity" toml:"CacheCapacity" description:"TxOutCache entry capacity"`
	PollPeriod          time.Duration `long:"poll_period" toml:"PollPeriod" description:"minimum time between chain polls"`

	Retries        int32         `long:"retries" toml:"Retries" description:"delivery attempts beyond the first before giving up"`
	RetryPeriod    time.Duration `long:"retry_period" toml:"RetryPeriod" description:"minimum time between delivery retries"`
	NThreads       int           `long:"nthreads" toml:"NThreads" description:"callback dispatcher worker pool size"`
	SignKeyPath    string        `long:"signkey_path" toml:"SignKeyPath" description:"path to the PEM-encoded ECDSA signing key"`

	StoreDialect string `long:"store_dialect" toml:"StoreDialect" description:"gorm dialect: mysql or sqlite3"`
	StoreDSN     string `long:"store_dsn" toml:"StoreDSN" description:"data source name for the store dialect"`

	ListenAddr string `long:"listen_addr" toml:"ListenAddr" description:"admission HTTP layer listen address"`

	LogDir   string `long:"logdir" toml:"LogDir" description:"directory for the rotating log file"`
	LogLevel string `long:"loglevel" toml:"LogLevel" description:"trace, debug, info, warn, error, critical"`
}

// Default returns a Config populated with production defaults.
func Default() Config {
	return Config{
		Chain:         "mainnet",
		Confirmations: 3,
		StartBlock:    0,
		CacheCapacity: 20000,
		PollPeriod:    5 * time.Second,
		Retries:       3,
		RetryPeriod:   120 * time.Second,
		NThreads:      4,
		StoreDialect:  "mysql",
		ListenAddr:    ":8080",
		LogDir:        "./logs",
		LogLevel:      "info",
	}
}

// tomlSettings keeps TOML keys matching struct fields, the same
// normalization klaytn's cmd/ranger config loader uses.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// Load parses os.Args into cfg (already seeded with Default()), then, if a
// config file was named, layers its values in before the flags — flags
// always win, matching go-flags' own precedence between its own defaults
// and explicitly passed values.
func Load(args []string) (Config, error) {
	cfg := Default()

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return Config{}, err
	}

	if cfg.ConfigFile != "" {
		fileCfg := cfg
		if err := loadFile(cfg.ConfigFile, &fileCfg); err != nil {
			return Config{}, err
		}
		fileCfg.ConfigFile = cfg.ConfigFile

		// Flags take precedence: re-parse over the file-loaded struct so
		// any value the user passed explicitly overrides the file.
		if _, err := flags.NewParser(&fileCfg, flags.Default).ParseArgs(args); err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
}
