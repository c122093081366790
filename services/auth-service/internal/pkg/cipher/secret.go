package cipher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"SiteAuthPlatform/pkg/config"
	"SiteAuthPlatform/pkg/logger"
)

// SecretCipher шифрует секреты аккаунтов системным ключом.
// Отсутствующий или поврежденный ключ делает неудачной только операцию,
// которой нужен секрет, а не весь процесс.
type SecretCipher struct {
	systemKey     []byte
	loadErr       error
	candidateFile string
	logger        logger.Logger

	candidateOnce sync.Once
}

// NewSecretCipher создает SecretCipher из секции security конфигурации
func NewSecretCipher(cfg config.SecurityConfig, log logger.Logger) *SecretCipher {
	c := &SecretCipher{
		candidateFile: cfg.CandidateKeyFile,
		logger:        log,
	}

	if cfg.KeyEncryptionSecretKey == "" {
		c.loadErr = ErrEncryptionKeyMissing
		return c
	}

	key, err := DecodeSystemKey(cfg.KeyEncryptionSecretKey)
	if err != nil {
		c.loadErr = err
		log.Error("failed to decode key-encryption-secret-key", logger.Error(err))
		return c
	}
	c.systemKey = key
	return c
}

// Check сообщает, готов ли системный ключ.
// При отсутствии ключа записывает кандидата в файл.
func (c *SecretCipher) Check() error {
	if c.loadErr == nil {
		return nil
	}
	if c.loadErr == ErrEncryptionKeyMissing {
		c.candidateOnce.Do(c.writeCandidate)
	}
	return c.loadErr
}

// EncryptSecret шифрует значение со случайным IV
func (c *SecretCipher) EncryptSecret(plainText string) (string, error) {
	if err := c.Check(); err != nil {
		return "", err
	}
	return EncryptRandomIV(c.systemKey, plainText)
}

// DecryptSecret расшифровывает значение в новом или устаревшем формате
func (c *SecretCipher) DecryptSecret(value string) (string, error) {
	if err := c.Check(); err != nil {
		return "", err
	}
	return DecryptAny(c.systemKey, value)
}

func (c *SecretCipher) writeCandidate() {
	candidate, err := GenerateCandidateKey()
	if err != nil {
		c.logger.Error("failed to generate candidate key", logger.Error(err))
		return
	}

	path := c.candidateFile
	if path == "" {
		path = "key-encryption-secret-key-candidate.properties"
	}

	if err := WriteCandidateFile(path, candidate); err != nil {
		c.logger.Error("failed to write candidate key",
			logger.String("path", path),
			logger.Error(err))
		return
	}

	c.logger.Error("key-encryption-secret-key is not configured, candidate key generated",
		logger.String("path", path))
}

// WriteCandidateFile записывает кандидата ключа в формате properties
func WriteCandidateFile(path, candidate string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	content := fmt.Sprintf("key-encryption-secret-key = %s\n", candidate)
	return os.WriteFile(path, []byte(content), 0600)
}
