package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/infra/config"
)

func newTestHasher(t *testing.T) *Argon2Hasher {
	t.Helper()
	hasher, err := NewArgon2Hasher(config.Argon2Settings{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return hasher
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher := newTestHasher(t)
	password := "correct horse battery staple"

	encoded, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[2] != "m=8192,t=1,p=1" {
		t.Fatalf("encoded hash does not reflect configured parameters: %s", parts[2])
	}

	ok, err := hasher.Verify(password, encoded)
	if err != nil || !ok {
		t.Fatalf("expected password to verify, got %v %v", ok, err)
	}

	ok, err = hasher.Verify("Tr0ub4dor&3", encoded)
	if err != nil || ok {
		t.Fatalf("expected wrong password to be rejected, got %v %v", ok, err)
	}
}

func TestArgon2VerifyInvalidInput(t *testing.T) {
	hasher := newTestHasher(t)

	if _, err := hasher.Verify("password", "invalid-format"); !errors.Is(err, errInvalidHashFormat) {
		t.Fatalf("expected errInvalidHashFormat, got %v", err)
	}
	if _, err := hasher.Verify("password", "bcrypt$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA"); err == nil {
		t.Fatalf("expected error for unexpected variant")
	}

	ok, err := hasher.Verify("", "")
	if err != nil || ok {
		t.Fatalf("expected empty inputs to be rejected without error, got %v %v", ok, err)
	}
}

func TestNewArgon2HasherRejectsWeakConfig(t *testing.T) {
	if _, err := NewArgon2Hasher(config.Argon2Settings{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); !errors.Is(err, errInvalidConfig) {
		t.Fatalf("expected errInvalidConfig, got %v", err)
	}
}

func TestJWTIssuerRoundTrip(t *testing.T) {
	issuer, err := NewJWTIssuer(config.JWTSettings{Secret: "test-secret", Issuer: "iam-test", AccessTokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewJWTIssuer returned error: %v", err)
	}

	restrictions := &domain.TokenRestrictions{Scopes: []string{"profile"}}
	issued, err := issuer.Issue("account-1", domain.EntityTypeAccount, restrictions)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if issued.JTI == "" || !issued.ExpiresAt.After(issued.IssuedAt) {
		t.Fatalf("unexpected issued token: %+v", issued)
	}

	claims, err := issuer.Parse(issued.Token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Subject != "account-1" || claims.ID != issued.JTI || claims.EntityType != "ACCOUNT" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Scopes) != 1 || claims.Scopes[0] != "profile" {
		t.Fatalf("expected restricted scopes, got %v", claims.Scopes)
	}
}

func TestJWTIssuerParseFailures(t *testing.T) {
	issuer, _ := NewJWTIssuer(config.JWTSettings{Secret: "test-secret", Issuer: "iam-test", AccessTokenTTL: time.Minute})
	other, _ := NewJWTIssuer(config.JWTSettings{Secret: "other-secret", Issuer: "iam-test", AccessTokenTTL: time.Minute})

	forged, err := other.Issue("account-1", domain.EntityTypeAccount, nil)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := issuer.Parse(forged.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for foreign signature, got %v", err)
	}

	issued, _ := issuer.Issue("account-1", domain.EntityTypeAccount, nil)
	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := issuer.Parse(issued.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	token, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}
	if HashToken(token) != HashToken(token) {
		t.Fatalf("expected deterministic hash")
	}
	if HashToken(token) == HashToken(token+"x") {
		t.Fatalf("expected distinct hashes for distinct tokens")
	}
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)
	if err != nil {
		t.Fatalf("GenerateNumericCode returned error: %v", err)
	}
	if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
		t.Fatalf("expected six digits, got %q", code)
	}
	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestMatchesTokenHash(t *testing.T) {
	hash := HashToken("123456")
	if !MatchesTokenHash("123456", hash) {
		t.Fatalf("expected code to match its hash")
	}
	if MatchesTokenHash("123457", hash) {
		t.Fatalf("expected a different code not to match")
	}
}
