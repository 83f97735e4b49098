package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Prefix 标识配置文件中的加密字段
const Prefix = "ENC:"

// Crypter 用 AES-256-GCM 加解密配置中的口令字段
type Crypter struct {
	gcm cipher.AEAD
}

// NewCrypter key 必须是 32 字节
func NewCrypter(key []byte) (*Crypter, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Crypter{gcm: gcm}, nil
}

// Seal 输出格式: ENC:<Base64(Nonce + Ciphertext)>
func (c *Crypter) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open 解密 ENC: 前缀的值
func (c *Crypter) Open(encoded string) (string, error) {
	if !IsSealed(encoded) {
		return "", fmt.Errorf("invalid format: missing '%s' prefix", Prefix)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, Prefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	nonceSize := c.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	plaintext, err := c.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// Reveal 明文原样返回，ENC: 值解密后返回
func (c *Crypter) Reveal(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	return c.Open(value)
}

// IsSealed 判断字符串是否是加密格式
func IsSealed(s string) bool {
	return strings.HasPrefix(s, Prefix)
}
