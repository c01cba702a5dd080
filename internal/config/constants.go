package config

import "time"

// Application constants
const (
	AppName = "enrichdash"

	// Job API
	DefaultHTTPTimeout = 30 * time.Second

	// Push channel: five reconnect attempts one second apart
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultPingPeriod        = 54 * time.Second
	DefaultPongWait          = 60 * time.Second

	// Rate limiting
	DefaultRateLimit = 20 // requests per second
	DefaultBurstSize = 40

	// File paths
	DefaultDataDir    = "data"
	DefaultReportsDir = "reports"
	DefaultExportsDir = "exports"
)
