// Package encryption 提供数据包级别的可插拔加密变换
// 每个数据包独立加密：输出格式为 [nonce][密文+tag]
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	coreerrors "syncio-client/internal/core/errors"
)

// Method 加密方法
type Method string

const (
	MethodNone             Method = ""
	MethodAESGCM           Method = "aes-256-gcm"
	MethodChaCha20Poly1305 Method = "chacha20-poly1305"
)

// KeySize 密钥长度（两种方法均为 256 位）
const KeySize = 32

// Transform 数据包加密变换
// 实现必须可被多个 goroutine 并发使用
type Transform interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
	Method() Method
}

// New 根据方法和密钥创建加密变换
func New(method Method, key []byte) (Transform, error) {
	switch Method(strings.ToLower(string(method))) {
	case MethodAESGCM, "aes-gcm":
		return newAESGCM(key)
	case MethodChaCha20Poly1305, "chacha20":
		return newChaCha20(key)
	default:
		return nil, coreerrors.Newf(coreerrors.CodeConfigError, "unsupported encryption method: %s", method)
	}
}

// NewFromBase64 使用 Base64 编码的密钥创建加密变换
// method 为空时返回 nil, nil（不加密）
func NewFromBase64(method Method, keyStr string) (Transform, error) {
	if method == MethodNone {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(keyStr)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeConfigError, "invalid base64 encryption key")
	}
	return New(method, key)
}

// GenerateKey 生成随机 256 位密钥
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, coreerrors.NewEncryptionError("keygen", "failed to generate random key", err)
	}
	return key, nil
}

// GenerateKeyBase64 生成 Base64 编码的密钥
func GenerateKeyBase64() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// ============================================================================
// AEAD 通用实现
// ============================================================================

type aeadTransform struct {
	aead   cipher.AEAD
	method Method
}

func newAESGCM(key []byte) (*aeadTransform, error) {
	if len(key) != KeySize {
		return nil, coreerrors.Newf(coreerrors.CodeConfigError, "AES-256-GCM requires %d-byte key, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, coreerrors.NewEncryptionError("init", "failed to create AES cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, coreerrors.NewEncryptionError("init", "failed to create GCM", err)
	}
	return &aeadTransform{aead: aead, method: MethodAESGCM}, nil
}

func newChaCha20(key []byte) (*aeadTransform, error) {
	if len(key) != KeySize {
		return nil, coreerrors.Newf(coreerrors.CodeConfigError, "ChaCha20-Poly1305 requires %d-byte key, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key) // XChaCha20-Poly1305 (24-byte nonce)
	if err != nil {
		return nil, coreerrors.NewEncryptionError("init", "failed to create ChaCha20-Poly1305", err)
	}
	return &aeadTransform{aead: aead, method: MethodChaCha20Poly1305}, nil
}

func (t *aeadTransform) Method() Method {
	return t.method
}

// Encrypt 加密，随机 nonce 置于输出开头
func (t *aeadTransform) Encrypt(plain []byte) ([]byte, error) {
	nonceSize := t.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plain)+t.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, coreerrors.NewEncryptionError("encrypt", "failed to generate nonce", err)
	}
	return t.aead.Seal(out, out[:nonceSize], plain, nil), nil
}

// Decrypt 解密并校验
func (t *aeadTransform) Decrypt(data []byte) ([]byte, error) {
	nonceSize := t.aead.NonceSize()
	if len(data) < nonceSize+t.aead.Overhead() {
		return nil, coreerrors.NewEncryptionError("decrypt", "ciphertext too short", nil)
	}
	plain, err := t.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, coreerrors.NewEncryptionError("decrypt", "authentication failed", err)
	}
	return plain, nil
}
