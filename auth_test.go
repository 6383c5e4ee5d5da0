package orathin

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKeyEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	sessionKey := []byte("0123456789ABCDEF0123456789ABCDEF")
	for _, padding := range []bool{true, false} {
		encrypted, err := encryptSessionKey(padding, key, sessionKey)
		require.NoError(t, err)
		decrypted, err := decryptSessionKey(padding, key, encrypted)
		require.NoError(t, err)
		assert.Equal(t, sessionKey, decrypted, "padding=%t", padding)
	}
}

func TestEncryptPasswordSaltedPrefix(t *testing.T) {
	key := make([]byte, 24)
	encrypted, err := encryptPassword("tiger", key)
	require.NoError(t, err)
	decrypted, err := decryptSessionKey(true, key, encrypted)
	require.NoError(t, err)
	// 16 random bytes, then the password
	require.GreaterOrEqual(t, len(decrypted), 16+5)
	assert.Equal(t, "tiger", string(decrypted[16:16+5]))
}

func TestLegacyDESKeySchedule(t *testing.T) {
	key1, err := getKeyFromUserNameAndPassword("scott", "tiger")
	require.NoError(t, err)
	key2, err := getKeyFromUserNameAndPassword("SCOTT", "TIGER")
	require.NoError(t, err)
	// case folds before hashing, and the result is deterministic
	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 16)
	key3, err := getKeyFromUserNameAndPassword("scott", "lion")
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)
}

func TestCalculateKeysHashLengths(t *testing.T) {
	key1 := make([]byte, 24)
	key2 := make([]byte, 24)
	for i := range key1 {
		key1[i] = byte(i)
		key2[i] = byte(i * 3)
	}
	hash10, err := calculateKeysHash(verifier10G, key1, key2)
	require.NoError(t, err)
	assert.Len(t, hash10, 16)
	hash11, err := calculateKeysHash(verifier11G, key1, key2)
	require.NoError(t, err)
	assert.Len(t, hash11, 24)
	_, err = calculateKeysHash(0x9999, key1, key2)
	assert.Error(t, err)
}

func TestPKCS5Padding(t *testing.T) {
	padded := pkcs5Padding([]byte("abc"), 16)
	assert.Len(t, padded, 16)
	assert.Equal(t, byte(13), padded[len(padded)-1])
	// exact block size still gains a full pad block
	padded = pkcs5Padding(make([]byte, 16), 16)
	assert.Len(t, padded, 32)
}

func TestDecryptRejectsMisalignedKey(t *testing.T) {
	key := make([]byte, 32)
	_, err := decryptSessionKey(false, key, hex.EncodeToString([]byte("odd")))
	assert.Error(t, err)
}
