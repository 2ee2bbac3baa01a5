package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-field-secret"

func TestDeriveKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, KeySize)

	t.Run("empty", func(t *testing.T) {
		_, err := DeriveKey("   ")
		assert.ErrorIs(t, err, ErrMissingKey)
	})
	t.Run("hex used directly", func(t *testing.T) {
		key, err := DeriveKey(hex.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, key)
	})
	t.Run("base64 used directly", func(t *testing.T) {
		key, err := DeriveKey(base64.StdEncoding.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, key)
	})
	t.Run("passphrase hashed", func(t *testing.T) {
		a, err := DeriveKey("correct horse battery staple")
		require.NoError(t, err)
		b, err := DeriveKey("correct horse battery staple")
		require.NoError(t, err)
		assert.Len(t, a, KeySize)
		assert.Equal(t, a, b)
	})
}

func TestFieldCipher_RoundTrip(t *testing.T) {
	c, err := NewFieldCipher(testSecret)
	require.NoError(t, err)

	for _, plain := range []string{"123456789012", "x", strings.Repeat("é", 300)} {
		field, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.True(t, field.Complete())
		assert.Len(t, field.IV, 2*nonceSize)
		assert.Len(t, field.AuthTag, 2*tagSize)
		assert.NotContains(t, field.Ciphertext, plain)

		got, err := c.Decrypt(field)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestFieldCipher_FreshIVPerCall(t *testing.T) {
	c, err := NewFieldCipher(testSecret)
	require.NoError(t, err)

	a, err := c.Encrypt("123456789012")
	require.NoError(t, err)
	b, err := c.Encrypt("123456789012")
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestFieldCipher_EncryptRejectsEmpty(t *testing.T) {
	c, err := NewFieldCipher(testSecret)
	require.NoError(t, err)

	_, err = c.Encrypt("")
	assert.ErrorIs(t, err, ErrEncryption)

	var unkeyed *FieldCipher
	_, err = unkeyed.Encrypt("123")
	assert.ErrorIs(t, err, ErrEncryption)
}

func TestFieldCipher_NonceSourceFailure(t *testing.T) {
	c, err := NewFieldCipher(testSecret, WithRandom(bytes.NewReader(nil)))
	require.NoError(t, err)

	_, err = c.Encrypt("123456789012")
	assert.ErrorIs(t, err, ErrEncryption)
}

func flipFirstHex(s string) string {
	b := []byte(s)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}

func TestFieldCipher_DecryptFailures(t *testing.T) {
	c, err := NewFieldCipher(testSecret)
	require.NoError(t, err)
	good, err := c.Encrypt("123456789012")
	require.NoError(t, err)

	other, err := NewFieldCipher("a-completely-different-secret")
	require.NoError(t, err)
	otherAAD, err := NewFieldCipher(testSecret, WithAssociatedData("other:purpose"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		cipher *FieldCipher
		mutate func(EncryptedField) EncryptedField
	}{
		{name: "tampered ciphertext", cipher: c, mutate: func(f EncryptedField) EncryptedField { f.Ciphertext = flipFirstHex(f.Ciphertext); return f }},
		{name: "tampered iv", cipher: c, mutate: func(f EncryptedField) EncryptedField { f.IV = flipFirstHex(f.IV); return f }},
		{name: "tampered tag", cipher: c, mutate: func(f EncryptedField) EncryptedField { f.AuthTag = flipFirstHex(f.AuthTag); return f }},
		{name: "missing ciphertext", cipher: c, mutate: func(f EncryptedField) EncryptedField { f.Ciphertext = ""; return f }},
		{name: "missing iv", cipher: c, mutate: func(f EncryptedField) EncryptedField { f.IV = ""; return f }},
		{name: "missing tag", cipher: c, mutate: func(f EncryptedField) EncryptedField { f.AuthTag = ""; return f }},
		{name: "non-hex ciphertext", cipher: c, mutate: func(f EncryptedField) EncryptedField { f.Ciphertext = "zz" + f.Ciphertext[2:]; return f }},
		{name: "short iv", cipher: c, mutate: func(f EncryptedField) EncryptedField { f.IV = f.IV[:10]; return f }},
		{name: "short tag", cipher: c, mutate: func(f EncryptedField) EncryptedField { f.AuthTag = f.AuthTag[:8]; return f }},
		{name: "wrong key", cipher: other, mutate: func(f EncryptedField) EncryptedField { return f }},
		{name: "wrong associated data", cipher: otherAAD, mutate: func(f EncryptedField) EncryptedField { return f }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cipher.Decrypt(tt.mutate(good))
			assert.ErrorIs(t, err, ErrDecryption)
			assert.Empty(t, got)
			assert.NotContains(t, err.Error(), "123456789012")
		})
	}
}

func flipByte(t *testing.T, s string, i int) string {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	b[i] ^= 0x01
	return hex.EncodeToString(b)
}

func TestFieldCipher_DetectsEveryFlippedByte(t *testing.T) {
	c, err := NewFieldCipher(testSecret)
	require.NoError(t, err)
	good, err := c.Encrypt("123456789012")
	require.NoError(t, err)

	parts := []struct {
		name string
		get  func(EncryptedField) string
		set  func(EncryptedField, string) EncryptedField
	}{
		{name: "ciphertext", get: func(f EncryptedField) string { return f.Ciphertext }, set: func(f EncryptedField, v string) EncryptedField { f.Ciphertext = v; return f }},
		{name: "iv", get: func(f EncryptedField) string { return f.IV }, set: func(f EncryptedField, v string) EncryptedField { f.IV = v; return f }},
		{name: "authTag", get: func(f EncryptedField) string { return f.AuthTag }, set: func(f EncryptedField, v string) EncryptedField { f.AuthTag = v; return f }},
	}
	for _, p := range parts {
		n := len(p.get(good)) / 2
		require.NotZero(t, n, p.name)
		for i := 0; i < n; i++ {
			tampered := p.set(good, flipByte(t, p.get(good), i))
			got, err := c.Decrypt(tampered)
			require.ErrorIs(t, err, ErrDecryption, "%s byte %d", p.name, i)
			require.Empty(t, got, "%s byte %d", p.name, i)
		}
	}
}

func TestFieldCipher_ConcurrentUse(t *testing.T) {
	c, err := NewFieldCipher(testSecret)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := c.Encrypt("123456789012")
			if err != nil {
				errs <- err
				return
			}
			if _, err := c.Decrypt(f); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent round trip: %v", err)
	}
}

func TestEncryptedField_State(t *testing.T) {
	assert.True(t, EncryptedField{}.IsZero())
	assert.False(t, EncryptedField{IV: "00"}.Complete())
	assert.True(t, EncryptedField{Ciphertext: "a", IV: "b", AuthTag: "c"}.Complete())
}

func fastHasher(t *testing.T, algorithm string) *Hasher {
	t.Helper()
	h, err := NewHasher(HasherConfig{
		Algorithm:       algorithm,
		BcryptCost:      4,
		Argon2Time:      1,
		Argon2MemoryKiB: 8 * 1024,
		Argon2Threads:   1,
	})
	require.NoError(t, err)
	return h
}

func TestHasher_HashAndVerify(t *testing.T) {
	for _, algorithm := range []string{AlgorithmBcrypt, AlgorithmArgon2id} {
		t.Run(algorithm, func(t *testing.T) {
			h := fastHasher(t, algorithm)

			a, err := h.Hash("Passw0rd!")
			require.NoError(t, err)
			b, err := h.Hash("Passw0rd!")
			require.NoError(t, err)
			assert.NotEqual(t, a, b, "salt must differ per call")
			assert.NotContains(t, a, "Passw0rd!")

			ok, err := h.Verify("Passw0rd!", a)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = h.Verify("wrong", a)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHasher_VerifiesAcrossAlgorithms(t *testing.T) {
	bc := fastHasher(t, AlgorithmBcrypt)
	ar := fastHasher(t, AlgorithmArgon2id)

	stored, err := ar.Hash("Passw0rd!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := bc.Verify("Passw0rd!", stored)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err = bc.Hash("Passw0rd!")
	require.NoError(t, err)
	ok, err = ar.Verify("Passw0rd!", stored)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasher_MalformedHash(t *testing.T) {
	h := fastHasher(t, AlgorithmBcrypt)
	for _, stored := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=3$salt$hash",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$!!$aGFzaA",
		"$2b$04$short",
	} {
		ok, err := h.Verify("Passw0rd!", stored)
		assert.False(t, ok, stored)
		assert.True(t, errors.Is(err, ErrMalformedHash), "stored=%q err=%v", stored, err)
	}
}

func TestNewHasher_Config(t *testing.T) {
	h, err := NewHasher(HasherConfig{})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmBcrypt, h.Algorithm())

	_, err = NewHasher(HasherConfig{Algorithm: "md5"})
	assert.Error(t, err)

	_, err = NewHasher(HasherConfig{Algorithm: AlgorithmBcrypt, BcryptCost: 99})
	assert.Error(t, err)
}

func TestNewHasher_RejectsArgon2Extremes(t *testing.T) {
	tests := []struct {
		name string
		cfg  HasherConfig
	}{
		{name: "memory wrapped from negative", cfg: HasherConfig{Algorithm: AlgorithmArgon2id, Argon2MemoryKiB: 4294967295, Argon2Time: 1, Argon2Threads: 1}},
		{name: "memory above cap", cfg: HasherConfig{Algorithm: AlgorithmArgon2id, Argon2MemoryKiB: MaxArgon2MemoryKiB + 1, Argon2Time: 1, Argon2Threads: 1}},
		{name: "memory below per-thread floor", cfg: HasherConfig{Algorithm: AlgorithmArgon2id, Argon2MemoryKiB: 8, Argon2Time: 1, Argon2Threads: 4}},
		{name: "time above cap", cfg: HasherConfig{Algorithm: AlgorithmArgon2id, Argon2MemoryKiB: 8 * 1024, Argon2Time: MaxArgon2Time + 1, Argon2Threads: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, err := NewHasher(tc.cfg)
			assert.Error(t, err)
			assert.Nil(t, h)
		})
	}

	h, err := NewHasher(HasherConfig{Algorithm: AlgorithmArgon2id, Argon2MemoryKiB: MaxArgon2MemoryKiB, Argon2Time: 1, Argon2Threads: 1})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmArgon2id, h.Algorithm())
}

func TestHasher_VerifyRejectsOversizedArgon2Params(t *testing.T) {
	h := fastHasher(t, AlgorithmArgon2id)
	stored := "$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"
	ok, err := h.Verify("Passw0rd!", stored)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMalformedHash)
}
