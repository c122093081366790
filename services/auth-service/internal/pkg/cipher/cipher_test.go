package cipher

import (
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SiteAuthPlatform/pkg/config"
	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/pkg/logger"
)

var testKey = mustHex("00112233445566778899aabbccddeeff")

func samplePlainTexts() []string {
	texts := []string{"", "a", "пароль", "JBSWY3DPEHPK3PXP", "日本語のテキスト"}
	// длины вокруг границы блока
	for _, n := range []int{15, 16, 17, 31, 32, 33} {
		texts = append(texts, strings.Repeat("x", n))
	}
	return texts
}

func TestEncryptDecrypt_FixedIV(t *testing.T) {
	for _, plain := range samplePlainTexts() {
		encrypted, err := Encrypt(testKey, configurationIV, plain)
		require.NoError(t, err)

		decrypted, err := Decrypt(testKey, configurationIV, encrypted)
		require.NoError(t, err)
		assert.Equal(t, plain, decrypted)
	}
}

func TestEncryptDecrypt_FixedIVIsDeterministic(t *testing.T) {
	first, err := Encrypt(testKey, configurationIV, "secret")
	require.NoError(t, err)
	second, err := Encrypt(testKey, configurationIV, "secret")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncryptRandomIV_RoundTrip(t *testing.T) {
	for _, plain := range samplePlainTexts() {
		encrypted, err := EncryptRandomIV(testKey, plain)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(encrypted, randomIVPrefix))

		decrypted, err := DecryptAny(testKey, encrypted)
		require.NoError(t, err)
		assert.Equal(t, plain, decrypted)
	}
}

func TestEncryptRandomIV_DiffersPerValue(t *testing.T) {
	first, err := EncryptRandomIV(testKey, "same")
	require.NoError(t, err)
	second, err := EncryptRandomIV(testKey, "same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDecryptAny_Legacy(t *testing.T) {
	legacy, err := Encrypt(testKey, configurationIV, "legacy-seed")
	require.NoError(t, err)

	decrypted, err := DecryptAny(testKey, legacy)
	require.NoError(t, err)
	assert.Equal(t, "legacy-seed", decrypted)
}

func TestDecrypt_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not base64", value: "%%%"},
		{name: "not block aligned", value: base64.StdEncoding.EncodeToString([]byte("short"))},
		{name: "empty", value: ""},
		{name: "v2 too short", value: randomIVPrefix + base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{name: "v2 not base64", value: randomIVPrefix + "%%%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptAny(testKey, tt.value)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrDecryptionFailed))
		})
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	encrypted, err := EncryptRandomIV(testKey, "seed")
	require.NoError(t, err)

	other := mustHex("ffeeddccbbaa99887766554433221100")
	decrypted, err := DecryptAny(other, encrypted)
	// неверный ключ почти всегда ломает дополнение, но не должен вернуть исходный текст
	if err == nil {
		assert.NotEqual(t, "seed", decrypted)
	} else {
		assert.True(t, apperrors.HasCode(err, apperrors.ErrDecryptionFailed))
	}
}

func TestGenerateCandidateKey(t *testing.T) {
	candidate, err := GenerateCandidateKey()
	require.NoError(t, err)

	decoded, err := DecodeConfiguration(candidate)
	require.NoError(t, err)
	raw, err := hex.DecodeString(decoded)
	require.NoError(t, err)
	assert.Len(t, raw, KeySize)

	key, err := DecodeSystemKey(candidate)
	require.NoError(t, err)
	assert.Equal(t, raw, key)
}

func TestDecodeSystemKey_Base64(t *testing.T) {
	encoded, err := EncodeConfiguration(base64.StdEncoding.EncodeToString(testKey))
	require.NoError(t, err)

	key, err := DecodeSystemKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, testKey, key)
}

func TestDecodeSystemKey_Invalid(t *testing.T) {
	encoded, err := EncodeConfiguration("not a key!")
	require.NoError(t, err)
	_, err = DecodeSystemKey(encoded)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrDecryptionFailed))

	encoded, err = EncodeConfiguration("0011")
	require.NoError(t, err)
	_, err = DecodeSystemKey(encoded)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrDecryptionFailed))
}

func TestSecretCipher_RoundTrip(t *testing.T) {
	candidate, err := GenerateCandidateKey()
	require.NoError(t, err)

	c := NewSecretCipher(config.SecurityConfig{KeyEncryptionSecretKey: candidate}, logger.NewNopLogger())
	require.NoError(t, c.Check())

	encrypted, err := c.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	decrypted, err := c.DecryptSecret(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", decrypted)

	// значения, записанные со старым фиксированным IV, читаются
	key, err := DecodeSystemKey(candidate)
	require.NoError(t, err)
	legacy, err := Encrypt(key, configurationIV, "legacy")
	require.NoError(t, err)
	decrypted, err = c.DecryptSecret(legacy)
	require.NoError(t, err)
	assert.Equal(t, "legacy", decrypted)
}

func TestSecretCipher_MissingKeyWritesCandidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key-encryption-secret-key-candidate.properties")
	c := NewSecretCipher(config.SecurityConfig{CandidateKeyFile: path}, logger.NewNopLogger())

	_, err := c.DecryptSecret("anything")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrEncryptionKeyMissing))

	_, err = c.EncryptSecret("anything")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrEncryptionKeyMissing))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(content))
	require.True(t, strings.HasPrefix(line, "key-encryption-secret-key = "))

	_, err = DecodeSystemKey(strings.TrimPrefix(line, "key-encryption-secret-key = "))
	assert.NoError(t, err)
}

func TestSecretCipher_CorruptKey(t *testing.T) {
	c := NewSecretCipher(config.SecurityConfig{KeyEncryptionSecretKey: "not-encrypted"}, logger.NewNopLogger())

	_, err := c.EncryptSecret("x")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrDecryptionFailed))
}
