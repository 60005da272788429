package crypto

import (
	"bytes"
	"testing"
)

// testKey returns a valid 32-byte key for use in tests.
func testKey() []byte {
	return bytes.Repeat([]byte("k"), 32)
}

func TestNewTokenCipher(t *testing.T) {
	t.Run("valid 32-byte key", func(t *testing.T) {
		tc, err := NewTokenCipher(testKey())
		if err != nil {
			t.Fatalf("NewTokenCipher() unexpected error: %v", err)
		}
		if tc == nil {
			t.Fatal("NewTokenCipher() returned nil cipher")
		}
	})

	tests := []struct {
		name   string
		keyLen int
	}{
		{"too short (16 bytes)", 16},
		{"too long (64 bytes)", 64},
		{"empty key", 0},
		{"31 bytes", 31},
		{"33 bytes", 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenCipher(bytes.Repeat([]byte("k"), tt.keyLen))
			if err != ErrKeyLengthInvalid {
				t.Errorf("NewTokenCipher() error = %v, want ErrKeyLengthInvalid", err)
			}
		})
	}
}

func TestSealAndOpen(t *testing.T) {
	tc, err := NewTokenCipher(testKey())
	if err != nil {
		t.Fatalf("NewTokenCipher() error: %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		sealed, err := tc.Seal("sk-very-secret-provider-key")
		if err != nil {
			t.Fatalf("Seal() error: %v", err)
		}
		if sealed == "sk-very-secret-provider-key" {
			t.Fatal("Seal() returned plaintext")
		}

		opened, err := tc.Open(sealed)
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		if opened != "sk-very-secret-provider-key" {
			t.Errorf("Open() = %q, want original plaintext", opened)
		}
	})

	t.Run("empty plaintext passes through", func(t *testing.T) {
		sealed, err := tc.Seal("")
		if err != nil {
			t.Fatalf("Seal() error: %v", err)
		}
		if sealed != "" {
			t.Errorf("Seal(\"\") = %q, want empty", sealed)
		}
	})

	t.Run("nonce makes ciphertext non-deterministic", func(t *testing.T) {
		a, _ := tc.Seal("same input")
		b, _ := tc.Seal("same input")
		if a == b {
			t.Error("Seal() produced identical ciphertexts for two calls")
		}
	})

	t.Run("tampered ciphertext is rejected", func(t *testing.T) {
		sealed, err := tc.Seal("payload")
		if err != nil {
			t.Fatalf("Seal() error: %v", err)
		}
		tampered := sealed[:len(sealed)-4] + "AAAA"
		if _, err := tc.Open(tampered); err == nil {
			t.Error("Open() expected error for tampered ciphertext, got nil")
		}
	})

	t.Run("garbage base64 is rejected", func(t *testing.T) {
		if _, err := tc.Open("!!!not-base64!!!"); err != ErrCiphertextCorrupted {
			t.Errorf("Open() error = %v, want ErrCiphertextCorrupted", err)
		}
	})

	t.Run("wrong key fails to decrypt", func(t *testing.T) {
		sealed, err := tc.Seal("payload")
		if err != nil {
			t.Fatalf("Seal() error: %v", err)
		}
		other, err := NewTokenCipher(bytes.Repeat([]byte("x"), 32))
		if err != nil {
			t.Fatalf("NewTokenCipher() error: %v", err)
		}
		if _, err := other.Open(sealed); err != ErrDecryptionFailed {
			t.Errorf("Open() error = %v, want ErrDecryptionFailed", err)
		}
	})
}

func TestDeriveTokenCipher(t *testing.T) {
	salt := bytes.Repeat([]byte("s"), 16)

	t.Run("derives working cipher", func(t *testing.T) {
		tc, err := DeriveTokenCipher("passphrase", salt, 10000)
		if err != nil {
			t.Fatalf("DeriveTokenCipher() error: %v", err)
		}
		sealed, err := tc.Seal("data")
		if err != nil {
			t.Fatalf("Seal() error: %v", err)
		}
		opened, err := tc.Open(sealed)
		if err != nil || opened != "data" {
			t.Errorf("Open() = %q, %v; want data, nil", opened, err)
		}
	})

	t.Run("short salt is rejected", func(t *testing.T) {
		if _, err := DeriveTokenCipher("passphrase", []byte("short"), 10000); err != ErrSaltTooShort {
			t.Errorf("DeriveTokenCipher() error = %v, want ErrSaltTooShort", err)
		}
	})
}
