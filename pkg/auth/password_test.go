package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" || strings.Contains(hash, "s3cret") {
		t.Fatalf("unexpected hash %q", hash)
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatalf("expected password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected password check to fail")
	}
	if CheckPassword(" s3cret", hash) {
		t.Fatalf("password must not be trimmed before comparison")
	}
}

func TestHashPasswordSalts(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct salted hashes")
	}
}

func TestCheckPasswordEmptyHash(t *testing.T) {
	if CheckPassword("anything", "") {
		t.Fatalf("empty stored hash must never match")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("admin123"); err != nil {
		t.Fatalf("expected valid password, got: %v", err)
	}
	if err := ValidatePassword("   "); !errors.Is(err, ErrPasswordEmpty) {
		t.Fatalf("expected ErrPasswordEmpty, got %v", err)
	}
	if err := ValidatePassword(strings.Repeat("a", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}
