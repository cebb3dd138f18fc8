package integration

import (
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestClaims holds the configurable claims of an access token issued by the
// mock school API.
type TestClaims struct {
	SubjectID string
	Email     string
	Role      string
	Extra     map[string]any
}

// AdminClaims returns TestClaims for a campus administrator.
func AdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-admin",
		Email:     "admin@school.test",
		Role:      "ADMIN",
	}
}

// TeacherClaims returns TestClaims for a teacher account.
func TeacherClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-teacher",
		Email:     "teacher@school.test",
		Role:      "TEACHER",
	}
}

// tokenIssuer signs access tokens the way the school API does (HS256) and
// verifies them on every mock request. Revoke invalidates every token issued
// so far, which is how tests simulate an expired session.
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration

	mu         sync.Mutex
	generation int
}

func newTokenIssuer() *tokenIssuer {
	return &tokenIssuer{
		secret: []byte("school-api-test-secret"),
		ttl:    time.Hour,
	}
}

// GenerateToken creates a valid, signed token with the given claims.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	ti.mu.Lock()
	gen := ti.generation
	ti.mu.Unlock()
	return ti.sign(claims, time.Now(), ti.ttl, gen)
}

// GenerateExpiredToken creates a token that expired an hour ago.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	ti.mu.Lock()
	gen := ti.generation
	ti.mu.Unlock()
	return ti.sign(claims, time.Now().Add(-2*time.Hour), ti.ttl, gen)
}

func (ti *tokenIssuer) sign(claims TestClaims, issuedAt time.Time, ttl time.Duration, gen int) string {
	mapClaims := jwt.MapClaims{
		"iat":   jwt.NewNumericDate(issuedAt),
		"exp":   jwt.NewNumericDate(issuedAt.Add(ttl)),
		"sub":   claims.SubjectID,
		"email": claims.Email,
		"role":  claims.Role,
		"gen":   gen,
	}
	maps.Copy(mapClaims, claims.Extra)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).SignedString(ti.secret)
	if err != nil {
		panic("sign JWT: " + err.Error())
	}
	return signed
}

// Verify checks the signature, expiry and generation of a token.
func (ti *tokenIssuer) Verify(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	gen, _ := claims["gen"].(float64)
	ti.mu.Lock()
	current := ti.generation
	ti.mu.Unlock()
	if int(gen) != current {
		return nil, errors.New("token revoked")
	}
	return claims, nil
}

// Revoke invalidates every token issued so far.
func (ti *tokenIssuer) Revoke() {
	ti.mu.Lock()
	ti.generation++
	ti.mu.Unlock()
}

// Subject returns the subject of a token without verifying it.
func Subject(raw string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}
