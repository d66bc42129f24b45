package auth

import "github.com/golang-jwt/jwt/v5"

// AccessTokenPayload captures the data available when minting a JWT. Tokens
// identify a client acting on behalf of one organization.
type AccessTokenPayload struct {
	OrgID      string
	ClientName string
	JTI        string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	OrgID      string `json:"org_id"`
	ClientName string `json:"client_name,omitempty"`
	jwt.RegisteredClaims
}
