package filecrypto

import "testing"

func TestVerifyPassword(t *testing.T) {
	hash := HashPassword("correct horse battery staple")

	if !VerifyPassword("correct horse battery staple", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong password", hash) {
		t.Error("wrong password accepted")
	}
	if VerifyPassword("", hash) {
		t.Error("empty password accepted")
	}
}

func TestHashPasswordDeterministic(t *testing.T) {
	if HashPassword("abc") != HashPassword("abc") {
		t.Error("hash is not deterministic")
	}
	if HashPassword("abc") == HashPassword("abd") {
		t.Error("distinct passwords hash identically")
	}
	// 64 hex chars for SHA-256
	if got := len(HashPassword("abc")); got != 64 {
		t.Errorf("expected 64 hex chars, got %d", got)
	}
}
