package refresh

import "time"

// Revocation reasons persisted on terminated records. Free-form values are
// allowed but these cover every path the service takes itself.
const (
	ReasonUserLogout      = "USER_LOGOUT"
	ReasonAdminRevoke     = "ADMIN_REVOKE"
	ReasonSecurityEvent   = "SECURITY_EVENT"
	ReasonPasswordChanged = "PASSWORD_CHANGED"
)

// Record is the persisted half of a refresh credential. TokenHash is the
// SHA-256 of the opaque value handed to the client; the raw value itself is
// never stored. A record is valid iff it is not revoked and not expired.
// Expiry is time-driven and checked lazily at redeem time; revocation is the
// only explicit terminal write, and nothing transitions out of it.
type Record struct {
	ID            string
	TokenHash     string
	PrincipalID   string
	ExpiresAt     time.Time
	IsRevoked     bool
	DeviceInfo    string
	IPAddress     string
	UserAgent     string
	CreatedAt     time.Time
	RevokedAt     *time.Time
	RevokedReason string
}

// Valid reports whether the record can still be redeemed at the given time.
func (r *Record) Valid(now time.Time) bool {
	return !r.IsRevoked && now.Before(r.ExpiresAt)
}

// Metadata is the optional audit context captured at issuance.
type Metadata struct {
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}
