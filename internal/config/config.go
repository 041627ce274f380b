// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string

	// JWTSecret signs and verifies session tokens.
	JWTSecret string

	// Credential is the shared sync secret the server's replica key is
	// derived from. It is never logged or echoed back.
	Credential string

	// CompactionEnabled turns on periodic tombstone pruning. Off by
	// default: pruning a tombstone a long-offline replica still needs
	// would resurrect the deletion on its next sync.
	CompactionEnabled bool

	// CompactionInterval is how often the pruning pass runs.
	CompactionInterval time.Duration

	// CompactionRetention is the minimum tombstone age before pruning.
	CompactionRetention time.Duration

	// Config is the path to the Config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.BoolVar(&options.CompactionEnabled, "compact", false, "enable tombstone compaction")
	flag.DurationVar(&options.CompactionInterval, "compact-interval", time.Hour, "tombstone compaction interval")
	flag.DurationVar(&options.CompactionRetention, "compact-retention", 90*24*time.Hour, "tombstone retention before pruning")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		options.JWTSecret = secret
	}

	if credential := os.Getenv("SYNC_CREDENTIAL"); credential != "" {
		options.Credential = credential
	}

	return options
}
