package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/golang-jwt/jwt/v5"
)

func jwtConfig() Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret-test-secret-test-secret"
	return cfg
}

func TestJWT_IssueAndVerify(t *testing.T) {
	t.Parallel()

	mgr, err := NewJWTManager(jwtConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	tok, exp, err := mgr.Issue(Principal{UserID: "u1", Role: "patient"}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now")
	}

	p, err := mgr.Verify(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.UserID != "u1" || p.Role != "patient" {
		t.Fatalf("unexpected principal: %+v", p)
	}

	if _, err := mgr.Verify(tok, exp.Add(time.Hour)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token err=%v want ErrInvalidToken", err)
	}
}

func TestJWT_RejectsWrongSecretAndAlgorithm(t *testing.T) {
	t.Parallel()

	mgr, err := NewJWTManager(jwtConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	now := time.Now().UTC()

	other := jwtConfig()
	other.JWTSecret = "another-secret"
	otherMgr, _ := NewJWTManager(other)
	forged, _, err := otherMgr.Issue(Principal{UserID: "u1"}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := mgr.Verify(forged, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret err=%v want ErrInvalidToken", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"userId": "u1",
		"exp":    now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := mgr.Verify(none, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg=none err=%v want ErrInvalidToken", err)
	}
}

func TestPasetoV4_IssueAndVerify(t *testing.T) {
	t.Parallel()

	secret := paseto.NewV4AsymmetricSecretKey()
	cfg := DefaultConfig()
	cfg.Mode = ModePaseto
	cfg.PasetoV4SecretKeyHex = secret.ExportHex()

	mgr, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := mgr.Issue(Principal{UserID: "d1", Role: "doctor"}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	verifyOnly := cfg
	verifyOnly.PasetoV4SecretKeyHex = ""
	verifyOnly.PasetoV4PublicKeyHex = secret.Public().ExportHex()
	verifier, err := NewPasetoV4PublicManager(verifyOnly)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager(public): %v", err)
	}

	p, err := verifier.Verify(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.UserID != "d1" || p.Role != "doctor" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if _, _, err := verifier.Issue(p, now); !errors.Is(err, ErrConfig) {
		t.Fatalf("verify-only Issue err=%v want ErrConfig", err)
	}
}

func TestAuthenticator_CookieThenBearer(t *testing.T) {
	t.Parallel()

	mgr, err := NewJWTManager(jwtConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	tok, _, err := mgr.Issue(Principal{UserID: "u2", Role: "doctor"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	a := NewAuthenticator(mgr, "")

	cookieReq := httptest.NewRequest(http.MethodGet, "/chats/poll", nil)
	cookieReq.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tok})
	if p, err := a.Authenticate(cookieReq); err != nil || p.UserID != "u2" {
		t.Fatalf("cookie auth p=%+v err=%v", p, err)
	}

	bearerReq := httptest.NewRequest(http.MethodGet, "/chats/poll", nil)
	bearerReq.Header.Set("Authorization", "bearer "+tok)
	if p, err := a.Authenticate(bearerReq); err != nil || p.UserID != "u2" {
		t.Fatalf("bearer auth p=%+v err=%v", p, err)
	}

	missing := httptest.NewRequest(http.MethodGet, "/chats/poll", nil)
	if _, err := a.Authenticate(missing); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("missing err=%v want ErrMissingToken", err)
	}

	garbage := httptest.NewRequest(http.MethodGet, "/chats/poll", nil)
	garbage.Header.Set("Authorization", "Bearer nope")
	if _, err := a.Authenticate(garbage); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage err=%v want ErrInvalidToken", err)
	}
}
