package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const shareIssuer = "theralink"

// ErrInvalidShareToken is returned for malformed, expired or forged tokens.
var ErrInvalidShareToken = errors.New("invalid share token")

// ShareClaims are the claims carried by a patient share link. The link is
// written to an NFC tag and grants read-only access to one patient's
// summary and schedule.
type ShareClaims struct {
	PatientID string `json:"patient_id"`
	jwt.RegisteredClaims
}

// GenerateShareToken signs a share token for patientID valid for ttl.
func GenerateShareToken(patientID, secret string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := &ShareClaims{
		PatientID: patientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    shareIssuer,
			Subject:   patientID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign share token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ValidateShareToken verifies a share token and returns its claims.
func ValidateShareToken(tokenString, secret string) (*ShareClaims, error) {
	claims := &ShareClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(shareIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShareToken, err)
	}
	if !token.Valid || claims.PatientID == "" {
		return nil, ErrInvalidShareToken
	}
	return claims, nil
}
