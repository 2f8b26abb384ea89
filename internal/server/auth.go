package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
)

// triggerSubject is the JWT subject accepted on trigger endpoints.
const triggerSubject = "cron"

var (
	errNoCredentials  = errors.New("missing bearer token")
	errNotConfigured  = errors.New("trigger secret not configured")
	errBadCredentials = errors.New("invalid trigger credentials")
)

// checkTrigger validates the Authorization header of a trigger request. The
// bearer value may be the static secret, a secret matching the bcrypt hash,
// or an HS256 JWT signed with the secret whose subject is "cron".
func checkTrigger(auth common.AuthConfig, header string) error {
	if auth.CronSecret == "" && auth.CronSecretHash == "" {
		return errNotConfigured
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return errNoCredentials
	}

	if auth.CronSecret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(auth.CronSecret)) == 1 {
		return nil
	}
	if auth.CronSecretHash != "" && bcrypt.CompareHashAndPassword([]byte(auth.CronSecretHash), []byte(token)) == nil {
		return nil
	}
	if auth.CronSecret != "" && strings.Count(token, ".") == 2 {
		if err := validateTriggerJWT(token, []byte(auth.CronSecret)); err == nil {
			return nil
		}
	}
	return errBadCredentials
}

func validateTriggerJWT(tokenString string, secret []byte) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return err
	}
	if claims.Subject != triggerSubject {
		return fmt.Errorf("unexpected subject %q", claims.Subject)
	}
	return nil
}

// SignTriggerToken issues a trigger JWT valid for ttl. Used by schedulers
// that prefer short-lived tokens over sending the secret itself.
func SignTriggerToken(secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errNotConfigured
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   triggerSubject,
		Issuer:    "etf-compass",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// requireTrigger writes 401 and returns false unless the request carries
// trigger credentials.
func (s *Server) requireTrigger(w http.ResponseWriter, r *http.Request) bool {
	err := checkTrigger(s.app.Config.Auth, r.Header.Get("Authorization"))
	if err == nil {
		return true
	}
	if errors.Is(err, errNotConfigured) {
		s.logger.Warn().Str("path", r.URL.Path).Msg("Trigger rejected: no cron secret configured")
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, http.StatusUnauthorized, "Unauthorized")
	return false
}
