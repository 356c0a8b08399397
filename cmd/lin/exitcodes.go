package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (missing config or credential)
	ExitNotFound    = 3 // Paper or run not found
	ExitAPIError    = 4 // Upstream API error (rate limit exhausted, auth, network)
)
