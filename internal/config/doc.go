// Package config loads the enrichdash configuration.
//
// Sources, in increasing order of precedence:
//
//	1. Default()
//	2. config.yaml (or the file named by ENRICH_CONFIG)
//	3. ENRICH_* environment variables
//
// Examples:
//
//	ENRICH_API_BASE_URL=https://jobs.example.com
//	ENRICH_CHANNEL_URL=wss://jobs.example.com/ws
//	ENRICH_CHANNEL_RECONNECT_ATTEMPTS=5
//	ENRICH_LOGGING_LEVEL=debug
//	ENRICH_SERVER_PORT=8080
//
// Load validates the result: the API base URL must be an absolute http(s) URL,
// ports and timeouts must be in range, and the logging settings are normalized.
package config
