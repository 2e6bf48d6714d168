// Package models holds the auth domain entities shared by the service,
// stores, and transport layers.
package models

import "time"

// Provider identifies which identity provider vouches for a user. It decides
// the verification path and the request-shape rules at login.
type Provider string

const (
	// ProviderSSO is the external university single-sign-on service. SSO
	// users are provisioned implicitly on first successful validation and
	// never carry a password hash.
	ProviderSSO Provider = "SSO"
	// ProviderPassword is the local password store. Password users always
	// carry a bcrypt hash and are created by explicit registration.
	ProviderPassword Provider = "PASSWORD"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderSSO || p == ProviderPassword
}

// User is the durable identity record. Username is unique across the whole
// user space regardless of provider; for SSO users it is the external
// identity id.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        *string    `json:"email,omitempty"`
	Provider     Provider   `json:"login_provider"`
	Nickname     string     `json:"nickname"`
	PasswordHash *string    `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// NewUser is the insert shape for the user store.
type NewUser struct {
	Username     string
	Email        *string
	Provider     Provider
	Nickname     string
	PasswordHash *string
}

// ExternalAssertion is the identity assertion returned by the external SSO
// validator. Only IdentityID and Name are used downstream; the rest is
// carried for the audit trail.
type ExternalAssertion struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	IdentityID     string `json:"identityId"`
	DeptID         string `json:"deptId"`
	Dept           string `json:"dept"`
	IdentityType   string `json:"identityType"`
	DetailType     string `json:"detailType"`
	IdentityStatus string `json:"identityStatus"`
	Campus         string `json:"campus"`
}

// LoginRequest is the transport-level login payload. Which fields are
// required depends on Provider: SSO needs SSOToken and a caller IP;
// PASSWORD needs Username and Password.
type LoginRequest struct {
	Provider Provider `json:"auth_provider"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	SSOToken string   `json:"sso_token,omitempty"`
	// IPAddress may be supplied explicitly by gateway clients; when empty
	// the server fills it from the connection.
	IPAddress string `json:"ip_address,omitempty"`
}

// RegisterRequest creates a local-password user. SSO identities are never
// registered explicitly.
type RegisterRequest struct {
	Provider Provider `json:"auth_provider"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Email    string   `json:"email,omitempty"`
}

// LoginResult is what a successful login returns: the user record and the
// opaque session token. Token is raw ciphertext bytes; encoding/json
// transports it base64-encoded.
type LoginResult struct {
	Success bool   `json:"success"`
	User    *User  `json:"user"`
	Token   []byte `json:"token"`
}

// RegisterResult reports the outcome of a registration.
type RegisterResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
