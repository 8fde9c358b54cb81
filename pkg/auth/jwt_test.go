package auth

import (
	"context"
	"testing"
	"time"
)

func TestJWT_SignVerify(t *testing.T) {
	j := New("test-secret")

	tok, err := j.Sign("user-42", time.Hour)
	if err != nil {
		t.Fatalf("Sign() unexpected error: %v", err)
	}
	uid, err := j.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}
	if uid != "user-42" {
		t.Errorf("Verify() = %q, want user-42", uid)
	}
}

func TestJWT_VerifyRejects(t *testing.T) {
	j := New("test-secret")
	tok, _ := j.Sign("user-42", time.Hour)

	tests := []struct {
		name string
		j    *JWT
		tok  string
	}{
		{name: "garbage token", j: j, tok: "not.a.token"},
		{name: "wrong secret", j: New("other-secret"), tok: tok},
		{
			name: "expired token",
			j:    j,
			tok: func() string {
				t, _ := j.Sign("user-42", -time.Minute)
				return t
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.j.Verify(tt.tok); err == nil {
				t.Error("Verify() error = nil, want error")
			}
		})
	}
}

func TestUserIDContext(t *testing.T) {
	ctx := context.Background()
	if got := UserID(ctx); got != "anon" {
		t.Errorf("UserID(empty ctx) = %q, want anon", got)
	}
	if got := UserID(WithUser(ctx, "user-7")); got != "user-7" {
		t.Errorf("UserID() = %q, want user-7", got)
	}
}
