// Package auth issues and verifies short-lived pairing tokens used to link
// a new channel identity (a phone number, a Discord user) to an existing
// gateway session. Tokens are HS256-signed JWTs: a five-line HMAC is not
// worth pulling in a JWT library for, so this is hand-rolled against the
// compact JWS serialization directly.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	oasis "github.com/nevindra/clawgate"
)

var b64 = base64.RawURLEncoding

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Claims is the pairing token payload. Subject is the identity being
// paired (e.g. a phone number); ChatID is the chat the pairing request
// originated from, bound into the token so a stolen token can't be replayed
// against a different chat.
type Claims struct {
	Subject   string `json:"sub"`
	ChatID    string `json:"chat_id"`
	Channel   string `json:"channel"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Signer issues and verifies HS256 pairing tokens against a shared secret.
type Signer struct {
	secret []byte
}

// NewSigner builds a Signer from a secret. An empty secret is rejected: an
// unsigned pairing token is a forgeable pairing token.
func NewSigner(secret []byte) (*Signer, *oasis.Error) {
	if len(secret) == 0 {
		return nil, oasis.NewInvalidArgument("pairing token secret must not be empty", "")
	}
	return &Signer{secret: secret}, nil
}

// Issue signs a new token for claims, setting IssuedAt to now and
// ExpiresAt to now+ttl.
func (s *Signer) Issue(claims Claims, now time.Time, ttl time.Duration) (string, *oasis.Error) {
	claims.IssuedAt = now.Unix()
	claims.ExpiresAt = now.Add(ttl).Unix()

	headerJSON, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", oasis.NewInternal("failed to marshal token header", err.Error())
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", oasis.NewInternal("failed to marshal token claims", err.Error())
	}

	signingInput := b64.EncodeToString(headerJSON) + "." + b64.EncodeToString(claimsJSON)
	sig := s.sign(signingInput)
	return signingInput + "." + b64.EncodeToString(sig), nil
}

// Verify checks a token's signature and expiry, returning its claims.
func (s *Signer) Verify(token string, now time.Time) (Claims, *oasis.Error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, oasis.NewUnauthorized("malformed pairing token", "")
	}

	signingInput := parts[0] + "." + parts[1]
	gotSig, err := b64.DecodeString(parts[2])
	if err != nil {
		return Claims{}, oasis.NewUnauthorized("malformed pairing token signature", "")
	}
	wantSig := s.sign(signingInput)
	if subtle.ConstantTimeCompare(gotSig, wantSig) != 1 {
		return Claims{}, oasis.NewUnauthorized("invalid pairing token signature", "")
	}

	claimsJSON, err := b64.DecodeString(parts[1])
	if err != nil {
		return Claims{}, oasis.NewUnauthorized("malformed pairing token claims", "")
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return Claims{}, oasis.NewUnauthorized("malformed pairing token claims", "")
	}

	if now.Unix() > claims.ExpiresAt {
		return Claims{}, oasis.NewUnauthorized("pairing token expired", "")
	}
	return claims, nil
}

func (s *Signer) sign(signingInput string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	return mac.Sum(nil)
}
