package identity

import (
	"testing"
	"time"
)

func BenchmarkPasswordHasher_Hash(b *testing.B) {
	hasher := NewPasswordHasher(DefaultBcryptCost)
	password := "correct-horse-battery-staple"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := hasher.Hash(password); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPasswordHasher_Verify(b *testing.B) {
	hasher := NewPasswordHasher(DefaultBcryptCost)
	password := "correct-horse-battery-staple"
	hash, _ := hasher.Hash(password)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !hasher.Verify(password, hash) {
			b.Fatal("verify failed")
		}
	}
}

func BenchmarkTokenService_Authenticate(b *testing.B) {
	tokens, err := NewTokenService([]byte("bench-secret-key-min-32-bytes-long"), time.Hour, "bench")
	if err != nil {
		b.Fatal(err)
	}
	token, _, _ := tokens.Issue("admin@acme.com", "acme")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tokens.Authenticate(token); err != nil {
			b.Fatal(err)
		}
	}
}
