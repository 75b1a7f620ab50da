package auth

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateAccessToken(Claims{
		UserID:   "usr-001",
		Username: "ana",
		Roles:    Roles{"admin"},
	}, testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.UserID != "usr-001" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "usr-001")
	}
	if !claims.Roles.Has("admin") {
		t.Errorf("Roles = %v, want admin", claims.Roles)
	}
	if claims.SessionID == "" {
		t.Error("SessionID should be filled in")
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}

	id := claims.Identity()
	if id.UserID != "usr-001" || id.Username != "ana" || id.SessionID != claims.SessionID {
		t.Errorf("Identity() = %+v", id)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken(Claims{UserID: "usr-001"}, "correct-secret", 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	if _, err := ParseToken(token, "wrong-secret"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		UserID: "usr-001",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ParseToken(token, testSecret); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ParseToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestParseToken_Malformed(t *testing.T) {
	if _, err := ParseToken("", testSecret); !errors.Is(err, ErrTokenMissing) {
		t.Errorf("empty token error = %v", err)
	}
	if _, err := ParseToken("abc.def", testSecret); err == nil {
		t.Error("ParseToken() should fail with malformed JWT")
	}
	if _, err := ParseToken("not-a-valid-jwt", testSecret); err == nil {
		t.Error("ParseToken() should fail with garbage")
	}
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: "u"}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken(token, testSecret); err == nil {
		t.Error("HS512 token should be rejected")
	}
}

func TestParseToken_RequiresUserID(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Username: "nobody"}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken(token, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_SubjectFallback(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-sub"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if got.UserID != "usr-sub" {
		t.Errorf("UserID = %q, want subject fallback", got.UserID)
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken(Claims{UserID: "usr-001"}, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	diff := claims.ExpiresAt.Time.Sub(time.Now().Add(15 * time.Minute))
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("default TTL should be ~15 minutes, got expiry diff of %v", diff)
	}
}

func TestRolesUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`"s-user"`, []string{"s-user"}},
		{`["admin","user"]`, []string{"admin", "user"}},
		{`""`, nil},
		{`null`, nil},
	}
	for _, tt := range tests {
		var r Roles
		if err := json.Unmarshal([]byte(tt.in), &r); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.in, err)
			continue
		}
		if len(r) != len(tt.want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, r, tt.want)
			continue
		}
		for i := range r {
			if r[i] != tt.want[i] {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, r, tt.want)
			}
		}
	}

	var r Roles
	if err := json.Unmarshal([]byte(`42`), &r); err == nil {
		t.Error("numeric role should fail")
	}
	if !(Roles{"a", "b"}).Any([]string{"x", "b"}) || (Roles{"a"}).Any(nil) {
		t.Error("Any() mismatch")
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	if got := TokenFromRequest(r, ""); got != "from-query" {
		t.Errorf("query: got %q", got)
	}

	r.Header.Set("Authorization", "Bearer from-header")
	if got := TokenFromRequest(r, ""); got != "from-header" {
		t.Errorf("header: got %q", got)
	}

	r.Header.Set("Cookie", "theme=dark; token=from-cookie")
	if got := TokenFromRequest(r, "token"); got != "from-cookie" {
		t.Errorf("cookie: got %q", got)
	}

	bare := httptest.NewRequest("GET", "/ws", nil)
	bare.Header.Set("Authorization", "Basic abc")
	if got := TokenFromRequest(bare, ""); got != "" {
		t.Errorf("non-bearer header: got %q", got)
	}
}
