// Package cipher реализует двухуровневое шифрование секретов.
//
// Конфигурационный слой: встроенный ключ и фиксированный IV защищают системный
// ключ, который хранится в конфигурации (key-encryption-secret-key).
// Секретный слой: системный ключ шифрует секреты аккаунтов (TOTP, U2F,
// пароли привязки к каталогу).
package cipher

import (
	"bytes"
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "SiteAuthPlatform/pkg/errors"
)

// randomIVPrefix метка формата со случайным IV: "v2:" + Base64(IV || CT)
const randomIVPrefix = "v2:"

// KeySize размер генерируемого системного ключа (AES-128)
const KeySize = 16

var (
	configurationKey = mustHex("8cf46ed9ec6db5243e634b6cfe965788")
	configurationIV  = mustHex("1aa13e4a6f1a022b51b550fffcd43021")
)

// Ошибки шифрования
var (
	ErrEncryptionKeyMissing = apperrors.New(apperrors.ErrEncryptionKeyMissing, "key-encryption-secret-key is not configured")
	ErrDecryptionFailed     = apperrors.New(apperrors.ErrDecryptionFailed, "failed to decrypt value")
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Encrypt шифрует текст AES-CBC с PKCS#7 и заданным IV, результат в Base64
func Encrypt(key, iv []byte, plainText string) (string, error) {
	cipherText, err := encryptBytes(key, iv, []byte(plainText))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(cipherText), nil
}

// Decrypt расшифровывает Base64 текст AES-CBC с PKCS#7 и заданным IV
func Decrypt(key, iv []byte, cipherText string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cipherText))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrDecryptionFailed, "cipher text is not valid base64")
	}
	plain, err := decryptBytes(key, iv, raw)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptRandomIV шифрует текст со случайным IV, который хранится перед шифртекстом
func EncryptRandomIV(key []byte, plainText string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}
	cipherText, err := encryptBytes(key, iv, []byte(plainText))
	if err != nil {
		return "", err
	}
	return randomIVPrefix + base64.StdEncoding.EncodeToString(append(iv, cipherText...)), nil
}

// DecryptAny расшифровывает значение в любом из форматов:
// со случайным IV (префикс v2:) или устаревшем с фиксированным IV
func DecryptAny(key []byte, value string) (string, error) {
	if !strings.HasPrefix(value, randomIVPrefix) {
		return Decrypt(key, configurationIV, value)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, randomIVPrefix))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrDecryptionFailed, "cipher text is not valid base64")
	}
	if len(raw) < 2*aes.BlockSize {
		return "", ErrDecryptionFailed.WithDetails("cipher text too short")
	}
	plain, err := decryptBytes(key, raw[:aes.BlockSize], raw[aes.BlockSize:])
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncodeConfiguration шифрует значение конфигурационным слоем
func EncodeConfiguration(plainText string) (string, error) {
	return Encrypt(configurationKey, configurationIV, plainText)
}

// DecodeConfiguration расшифровывает значение конфигурационного слоя
func DecodeConfiguration(encoded string) (string, error) {
	return Decrypt(configurationKey, configurationIV, encoded)
}

// GenerateCandidateKey создает новый системный ключ, зашифрованный конфигурационным слоем.
// Результат можно сразу записать в key-encryption-secret-key.
func GenerateCandidateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return EncodeConfiguration(hex.EncodeToString(key))
}

// DecodeSystemKey снимает конфигурационный слой и декодирует ключ из Hex или Base64
func DecodeSystemKey(encoded string) ([]byte, error) {
	decoded, err := DecodeConfiguration(encoded)
	if err != nil {
		return nil, err
	}
	decoded = strings.TrimSpace(decoded)

	key, err := hex.DecodeString(decoded)
	if err != nil {
		key, err = base64.StdEncoding.DecodeString(decoded)
		if err != nil {
			return nil, ErrDecryptionFailed.WithDetails("system key is neither hex nor base64")
		}
	}

	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, ErrDecryptionFailed.WithDetails(fmt.Sprintf("invalid system key length %d", len(key)))
	}
}

func encryptBytes(key, iv, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("invalid iv length %d", len(iv))
	}

	padded := pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	stdcipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func decryptBytes(key, iv, cipherText []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDecryptionFailed, "failed to create cipher")
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrDecryptionFailed.WithDetails("invalid iv length")
	}
	if len(cipherText) == 0 || len(cipherText)%aes.BlockSize != 0 {
		return nil, ErrDecryptionFailed.WithDetails("cipher text is not a multiple of the block size")
	}

	out := make([]byte, len(cipherText))
	stdcipher.NewCBCDecrypter(block, iv).CryptBlocks(out, cipherText)
	return unpad(out, aes.BlockSize)
}

// pad дополняет данные по PKCS#7
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad снимает дополнение PKCS#7
func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrDecryptionFailed.WithDetails("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, ErrDecryptionFailed.WithDetails("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrDecryptionFailed.WithDetails("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
