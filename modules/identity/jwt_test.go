package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func validClaims(id, role string) Claims {
	now := time.Now()
	return Claims{
		UserID: id,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestTokenVerifier_Verify(t *testing.T) {
	verifier := NewHMACVerifier(testSecret, "")

	expired := validClaims("alice", "")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims("alice", "")
	noExpiry.ExpiresAt = nil

	subjectOnly := validClaims("", "")
	subjectOnly.Subject = "bob"

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantErr error
	}{
		{"valid", signToken(t, testSecret, validClaims("alice", "member")), "alice", nil},
		{"subject fallback", signToken(t, testSecret, subjectOnly), "bob", nil},
		{"wrong secret", signToken(t, "other", validClaims("alice", "")), "", ErrInvalidToken},
		{"expired", signToken(t, testSecret, expired), "", ErrExpiredToken},
		{"missing expiry", signToken(t, testSecret, noExpiry), "", ErrInvalidToken},
		{"missing principal", signToken(t, testSecret, validClaims("", "")), "", ErrInvalidToken},
		{"garbage", "not-a-jwt", "", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := verifier.Verify(tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() unexpected error: %v", err)
			}
			if claims.PrincipalID() != tt.wantID {
				t.Errorf("PrincipalID() = %q, want %q", claims.PrincipalID(), tt.wantID)
			}
		})
	}
}

func TestTokenVerifier_Issuer(t *testing.T) {
	verifier := NewHMACVerifier(testSecret, "company-chat")

	claims := validClaims("alice", "")
	if _, err := verifier.Verify(signToken(t, testSecret, claims)); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected missing issuer to be rejected, got %v", err)
	}

	claims.Issuer = "company-chat"
	if _, err := verifier.Verify(signToken(t, testSecret, claims)); err != nil {
		t.Errorf("expected matching issuer to pass, got %v", err)
	}
}

func TestTokenVerifier_RejectsNonHMAC(t *testing.T) {
	verifier := NewHMACVerifier(testSecret, "")
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("alice", "")).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign none token: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

// recordingLogger keeps warnings so tests can assert on them.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(_ string, _ ...any) {}
func (l *recordingLogger) Info(_ string, _ ...any)  {}
func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprint(append([]any{msg}, args...)...))
}
func (l *recordingLogger) Error(_ string, _ ...any)         {}
func (l *recordingLogger) With(_ ...any) types.Logger       { return l }
func (l *recordingLogger) WithModule(_ string) types.Logger { return l }
func (l *recordingLogger) WithError(_ error) types.Logger   { return l }

func (l *recordingLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

func newJWKSServer(t *testing.T, kid string, key *rsa.PublicKey) *httptest.Server {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	if err != nil {
		t.Fatalf("failed to encode JWKS: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWKSVerifier_Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	srv := newJWKSServer(t, "k1", &key.PublicKey)

	verifier, err := NewJWKSVerifier(context.Background(), srv.URL, "", &recordingLogger{})
	if err != nil {
		t.Fatalf("NewJWKSVerifier() error = %v", err)
	}
	defer verifier.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("alice", "member"))
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	claims, err := verifier.Verify(signed)
	if err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}
	if claims.PrincipalID() != "alice" {
		t.Errorf("PrincipalID() = %q, want alice", claims.PrincipalID())
	}

	if _, err := verifier.Verify(signToken(t, testSecret, validClaims("alice", ""))); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("HS256 token against JWKS verifier: error = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshErrorHandler_LogsThroughLogger(t *testing.T) {
	logger := &recordingLogger{}
	refreshErrorHandler("https://idp.example/jwks", logger)(errors.New("connection refused"))

	warns := logger.warnings()
	if len(warns) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warns))
	}
	if !strings.HasPrefix(warns[0], "JWKS refresh failed") {
		t.Errorf("warning = %q", warns[0])
	}
}
