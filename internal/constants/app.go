// Package constants holds application-wide constants for smbclient.
package constants

import (
	"time"
)

// Application identity
const (
	// AppName is used for the config directory and the binary name.
	AppName = "smbclient"

	// EnvPrefix is the prefix for environment variable overrides (SMBCLIENT_LOG_LEVEL, ...).
	EnvPrefix = "SMBCLIENT"
)

// Credential store keys.
const (
	KeyServerURL = "serverUrl"
	KeyUsername  = "username"
	KeyPassword  = "password"
)

// SMB transport
const (
	// DefaultSMBPort is used when the server URL carries no explicit port.
	DefaultSMBPort = 445

	// DefaultDialTimeout bounds the TCP connect + NTLM negotiation.
	DefaultDialTimeout = 10 * time.Second
)

// Transfers
const (
	// CopyBufferSize - buffer used for stream copies (1 MiB)
	// SMB2 reads are capped by the negotiated MaxReadSize; 1 MiB keeps a
	// single read in flight on most servers.
	CopyBufferSize = 1024 * 1024

	// DefaultMaxConcurrent - default number of transfers allowed to move bytes at once
	DefaultMaxConcurrent = 4

	// MinMaxConcurrent - minimum concurrent transfers (sequential mode)
	MinMaxConcurrent = 1

	// MaxMaxConcurrent - maximum concurrent transfers allowed
	MaxMaxConcurrent = 16

	// ProgressUpdateInterval - minimum time between progress events for one task
	ProgressUpdateInterval = 250 * time.Millisecond
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer - maximum buffer size for high-throughput subscribers
	EventBusMaxBuffer = 4096
)

// History
const (
	// HistoryDefaultLimit - rows shown by `smbclient history` when no limit is given
	HistoryDefaultLimit = 20
)
