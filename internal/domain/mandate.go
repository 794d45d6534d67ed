package domain

import "time"

// Mandate is the signed authorization binding a session's contents and
// grand total at signing time. Immutable once created; any later
// session mutation tears it down.
type Mandate struct {
	// Digest is the hex SHA-256 of the canonical transaction payload.
	Digest string `json:"digest"`
	// Authorization is the detached JWS (<header>..<signature>).
	Authorization string    `json:"authorization"`
	Signature     string    `json:"signature"`
	KeyID         string    `json:"key_id"`
	Algorithm     string    `json:"algorithm"`
	SignedAt      time.Time `json:"signed_at"`
}
