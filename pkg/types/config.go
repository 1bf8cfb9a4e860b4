// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by every stage that talks to
// the remote file server.
type HTTPConfig struct {
	// BaseURL is the root of the remote file index (e.g.
	// "https://myrient.erista.me/files/"). Listing and file paths are
	// appended to it verbatim.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Timeout is the HTTP request timeout. Zero disables the client timeout,
	// which large transfers need.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with every request. The server
	// rejects default client identifiers, so this defaults to a browser string.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// Accept is the Accept header sent with every request.
	Accept string `json:"accept" yaml:"accept" mapstructure:"accept"`

	// MaxRetries bounds retries on HTTP 429 when fetching listings.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// TransferConfig holds settings for the transfer stage.
type TransferConfig struct {
	// OutputDir is the pre-existing directory files are written into.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// ChunkSize splits a transfer into sequential ranged requests of at most
	// this many bytes. Zero streams the remainder in a single request.
	ChunkSize int64 `json:"chunk_size" yaml:"chunk_size" mapstructure:"chunk_size"`

	// RateLimit caps the transfer speed in bytes per second. Zero is unlimited.
	RateLimit int64 `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`

	// MaxAttempts is the number of attempts per item before it is recorded
	// as failed (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// RetryBaseDelay is the delay before the second attempt; it doubles for
	// each further attempt (default 100ms).
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay" mapstructure:"retry_base_delay"`
}

// HistoryConfig holds settings for the run history ledger.
type HistoryConfig struct {
	// Path is the SQLite database file. Defaults to
	// ~/.local/state/datfetch/history.db.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// Disabled turns off recording.
	Disabled bool `json:"disabled" yaml:"disabled" mapstructure:"disabled"`
}

// Config groups all stage configurations.
type Config struct {
	HTTP     HTTPConfig     `json:"http" yaml:"http" mapstructure:"http"`
	Transfer TransferConfig `json:"transfer" yaml:"transfer" mapstructure:"transfer"`
	History  HistoryConfig  `json:"history" yaml:"history" mapstructure:"history"`
}
