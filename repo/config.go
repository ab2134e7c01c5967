package repo

import (
	"time"
)

type Config struct {
	RepoRoot string `mapstructure:"-" toml:"-"`
	DialUrl  string `mapstructure:"dial_url" toml:"dial_url"`
	// chain the evaluation must run against, 0 accepts whatever the node reports
	ChainID        uint64     `mapstructure:"chain_id" toml:"chain_id"`
	ConfigContract string     `mapstructure:"config_contract" toml:"config_contract"`
	// block the snapshot is taken at, 0 means latest block
	BlockNumber uint64     `mapstructure:"block_number" toml:"block_number"`
	Evaluation  Evaluation `mapstructure:"evaluation" toml:"evaluation"`
	RPC         RPC        `mapstructure:"rpc" toml:"rpc"`
	Log         Log        `mapstructure:"log" toml:"log"`
	Store       Store      `mapstructure:"store" toml:"store"`
}

type Evaluation struct {
	ParallelAssets bool `mapstructure:"parallel_assets" toml:"parallel_assets"`
	// reject votes whose signature does not recover to the claimed voter
	EnforceVoter bool `mapstructure:"enforce_voter" toml:"enforce_voter"`
	// reject tallies that add up to more than the total supply
	StrictTally bool `mapstructure:"strict_tally" toml:"strict_tally"`
}

type RPC struct {
	CacheSize   int           `mapstructure:"cache_size" toml:"cache_size"`
	DialRetries uint          `mapstructure:"dial_retries" toml:"dial_retries"`
	DialBackoff time.Duration `mapstructure:"dial_backoff" toml:"dial_backoff"`
}

type Log struct {
	Level        string        `mapstructure:"level" toml:"level"`
	Filename     string        `mapstructure:"filename" toml:"filename"`
	ReportCaller bool          `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       time.Duration `mapstructure:"max_age" toml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" toml:"rotation_time"`
}

type Store struct {
	Dir string `mapstructure:"dir" toml:"dir"`
}

func DefaultConfig(repoRoot string) *Config {
	return &Config{
		RepoRoot:       repoRoot,
		DialUrl:        "http://localhost:8545",
		ChainID:        SepoliaChainID,
		ConfigContract: "0x0000000000000000000000000000000000000000",
		BlockNumber:    0,
		Evaluation: Evaluation{
			ParallelAssets: false,
			EnforceVoter:   true,
			StrictTally:    false,
		},
		RPC: RPC{
			CacheSize:   4096,
			DialRetries: 5,
			DialBackoff: 2 * time.Second,
		},
		Log: Log{
			Level:        "info",
			Filename:     "govproof.log",
			ReportCaller: false,
			MaxAge:       30 * 24 * time.Hour,
			RotationTime: 24 * time.Hour,
		},
		Store: Store{
			Dir: "leveldb",
		},
	}
}
