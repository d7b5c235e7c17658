package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// Encryptor reversibly protects short secrets at rest, such as provider
// client secrets. Ciphertext is base64url text safe for config files and
// text columns.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Encryptor kinds accepted in EncryptorConfig.
const (
	EncryptorAESGCM   = "aes-gcm"
	EncryptorXChaCha  = "xchacha20-poly1305"
	minEncryptorInput = 16
)

// EncryptorConfig selects an encryptor and its key material. The AEAD key
// is derived from Material with HKDF-SHA256, so Material may be any
// high-entropy string of at least 16 bytes.
type EncryptorConfig struct {
	Kind     string `yaml:"kind" json:"kind" env:"KIND" envDefault:"xchacha20-poly1305"`
	Material Secret `yaml:"material" json:"material" env:"KEY"`
}

// NewEncryptor builds the encryptor described by cfg.
func NewEncryptor(cfg EncryptorConfig) (Encryptor, error) {
	switch strings.ToLower(cfg.Kind) {
	case EncryptorAESGCM:
		return NewAESGCMEncryptor(cfg.Material)
	case EncryptorXChaCha, "":
		return NewXChaChaEncryptor(cfg.Material)
	default:
		return nil, sserr.EncryptorError(nil, "credentials: unsupported encryptor "+cfg.Kind)
	}
}

func deriveKey(material Secret, info string) ([]byte, error) {
	if len(material.Value()) < minEncryptorInput {
		return nil, sserr.EncryptorError(nil, "credentials: encryption key material must be at least 16 bytes")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(material.Value()), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, sserr.EncryptorError(err, "credentials: key derivation failed")
	}
	return key, nil
}

// aeadEncryptor seals with a random nonce prefixed to the ciphertext.
type aeadEncryptor struct {
	aead cipher.AEAD
}

func (e *aeadEncryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", sserr.EncryptorError(err, "credentials: nonce generation failed")
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (e *aeadEncryptor) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", sserr.EncryptorError(err, "credentials: ciphertext is not base64url")
	}
	ns := e.aead.NonceSize()
	if len(raw) < ns+e.aead.Overhead() {
		return "", sserr.EncryptorError(nil, "credentials: ciphertext too short")
	}
	plain, err := e.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", sserr.EncryptorError(err, "credentials: decryption failed")
	}
	return string(plain), nil
}

// AESGCMEncryptor uses AES-256-GCM.
type AESGCMEncryptor struct{ aeadEncryptor }

// NewAESGCMEncryptor derives an AES-256 key from material.
func NewAESGCMEncryptor(material Secret) (*AESGCMEncryptor, error) {
	key, err := deriveKey(material, "authn/aes-256-gcm")
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, sserr.EncryptorError(err, "credentials: AES init failed")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, sserr.EncryptorError(err, "credentials: GCM init failed")
	}
	return &AESGCMEncryptor{aeadEncryptor{aead: gcm}}, nil
}

// XChaChaEncryptor uses XChaCha20-Poly1305. Its 24 byte nonce makes
// random nonces safe for any realistic number of messages.
type XChaChaEncryptor struct{ aeadEncryptor }

// NewXChaChaEncryptor derives an XChaCha20-Poly1305 key from material.
func NewXChaChaEncryptor(material Secret) (*XChaChaEncryptor, error) {
	key, err := deriveKey(material, "authn/xchacha20-poly1305")
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, sserr.EncryptorError(err, "credentials: XChaCha20-Poly1305 init failed")
	}
	return &XChaChaEncryptor{aeadEncryptor{aead: aead}}, nil
}
