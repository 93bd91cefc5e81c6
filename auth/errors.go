// Package auth implements SCRAM-SHA-256 authentication for wire clients.
package auth

import "errors"

// Sentinel errors for SCRAM authentication.
var (
	// ErrConversationDone indicates Step was called after the exchange
	// already completed.
	ErrConversationDone = errors.New("scram: conversation already complete")

	// ErrAuthenticationFailed indicates the client's proof did not match.
	ErrAuthenticationFailed = errors.New("scram: authentication failed")
)
