package auth

import "testing"

func TestHashPasswordProducesDistinctDigests(t *testing.T) {
	t.Parallel()

	first, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	second, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if first == second {
		t.Fatalf("expected distinct digests for the same plaintext, got %q twice", first)
	}
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	digest, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if !VerifyPassword("s3cret", digest) {
		t.Fatalf("VerifyPassword() = false for the correct password")
	}
	if VerifyPassword("wrong", digest) {
		t.Fatalf("VerifyPassword() = true for a wrong password")
	}
	if VerifyPassword("", digest) {
		t.Fatalf("VerifyPassword() = true for an empty password")
	}
}

func TestVerifyPasswordFailsClosed(t *testing.T) {
	t.Parallel()

	// A malformed digest makes bcrypt error internally; that must read as
	// "not verified", never as "verified".
	if VerifyPassword("s3cret", "not-a-bcrypt-digest") {
		t.Fatalf("VerifyPassword() = true for a malformed digest")
	}
	if VerifyPassword("s3cret", "") {
		t.Fatalf("VerifyPassword() = true for an empty digest")
	}
}
