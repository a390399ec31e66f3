// Package invite issues and resolves join references.
//
// A join reference is an HS256-signed JWT whose subject is the group ID.
// The server verifies the signature; clients read the group ID straight out
// of the claims without a round trip.
package invite

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "kriskindle"

var ErrInvalidReference = errors.New("invalid join reference")

// Issuer signs and verifies join references.
type Issuer struct {
	secretKey []byte
	now       func() time.Time
}

// Claims represents the claims carried by a join reference.
type Claims struct {
	GroupName string `json:"group_name,omitempty"`
	jwt.RegisteredClaims
}

// NewIssuer creates an issuer with the given secret.
// secretKey should be a strong random string (e.g., 32 bytes).
func NewIssuer(secretKey string) *Issuer {
	return &Issuer{
		secretKey: []byte(secretKey),
		now:       time.Now,
	}
}

// Issue creates a join reference for the group.
func (i *Issuer) Issue(groupID, groupName string) (string, error) {
	claims := &Claims{
		GroupName: groupName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  groupID,
			IssuedAt: jwt.NewNumericDate(i.now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ref, err := token.SignedString(i.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign join reference: %w", err)
	}

	return ref, nil
}

// Verify checks the signature of ref and returns the group ID it names.
func (i *Issuer) Verify(ref string) (string, error) {
	token, err := jwt.ParseWithClaims(
		ref,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Verify the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return i.secretKey, nil
		},
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidReference
	}

	return claims.Subject, nil
}

// Resolve returns the group ID named by ref without checking its signature.
// Clients use it to turn an invite link into a group ID offline; the server
// still looks the group up, so a forged reference only names a group the
// caller could have typed in anyway.
func Resolve(ref string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(ref, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if claims.Issuer != issuer || claims.Subject == "" {
		return "", ErrInvalidReference
	}
	return claims.Subject, nil
}
