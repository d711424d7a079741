package core

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type TokenPurpose string

const (
	PurposeApproval  TokenPurpose = "approval"
	PurposeRejection TokenPurpose = "rejection"
)

// TokenAction is what an action token reveals when decoded.
type TokenAction struct {
	Purpose    TokenPurpose
	SanctionID string
	ActorID    int
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Purpose TokenPurpose `json:"purpose"`
	ActorID int          `json:"actor"`
}

// A TokenCodec encodes and decodes the opaque action tokens which are
// embedded in mailed approval and rejection links. Tokens are HMAC-signed,
// so they survive being passed around in URLs but not tampering.
type TokenCodec struct {
	secret []byte
}

func NewTokenCodec(secret []byte) *TokenCodec {
	return &TokenCodec{
		secret: secret,
	}
}

func (tc *TokenCodec) Encode(purpose TokenPurpose, sanctionID string, actorID int) (string, error) {
	var claims = tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: sanctionID,
			Issuer:  "curator/sanction",
		},
		Purpose: purpose,
		ActorID: actorID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.secret)
}

// Decode parses and verifies a token string. A token which does not parse or
// verify is malformed, which the caller reports just like a semantically
// wrong token but logs differently.
func (tc *TokenCodec) Decode(tokenString string) (*TokenAction, error) {

	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return tc.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("parsing token: %w", jwt.ErrTokenSignatureInvalid)
	}

	switch claims.Purpose {
	case PurposeApproval, PurposeRejection:
	default:
		return nil, fmt.Errorf("unknown token purpose %q", claims.Purpose)
	}

	return &TokenAction{
		Purpose:    claims.Purpose,
		SanctionID: claims.Subject,
		ActorID:    claims.ActorID,
	}, nil
}
