package auth

import "testing"

func TestHashPasswordAndVerify(t *testing.T) {
	password := "deuce-advantage!"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if hash == "" || hash == password {
		t.Fatalf("expected a hash distinct from the password, got %q", hash)
	}

	if !VerifyPassword(hash, password) {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("expected password mismatch to fail")
	}
	if VerifyPassword("not-a-valid-hash", password) {
		t.Fatal("expected invalid hash to fail verification")
	}
}
