// Package codec 服务端持有密钥的对称加密：消息正文落库加密、媒体访问令牌、通话会话密钥
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize        = 32
	nonceSize      = 12
	sessionKeySize = 32
	hkdfInfo       = "murmur/message-at-rest/v1"
)

var (
	ErrEmptySecret    = errors.New("codec: empty secret")
	ErrMalformed      = errors.New("codec: malformed ciphertext")
	ErrMalformedToken = errors.New("codec: malformed media token")
)

// Codec 并发安全
type Codec struct {
	aead cipher.AEAD
	now  func() time.Time
}

// Option 可选项
type Option func(*Codec)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// New 用 HKDF-SHA256 从配置的 secret 派生 AES-256 密钥
func New(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	c := &Codec{aead: aead, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encrypt 输出 base64(nonce || sealed)
func (c *Codec) Encrypt(text string) (string, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(text)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(text), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt Encrypt 的逆操作，篡改或截断的输入返回 ErrMalformed
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(plain), nil
}

// MintMediaToken 加密 "url|签发纳秒时间戳"，有效期只在解析时检查
func (c *Codec) MintMediaToken(url string) (string, error) {
	payload := url + "|" + strconv.FormatInt(c.now().UnixNano(), 10)
	token, err := c.Encrypt(payload)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

// ResolveMediaToken now <= issuedAt+ttl 时返回 url；过期或格式错误返回 false
func (c *Codec) ResolveMediaToken(token string, ttl time.Duration) (string, bool) {
	url, issuedAt, err := c.parseMediaToken(token)
	if err != nil {
		return "", false
	}
	if c.now().After(issuedAt.Add(ttl)) {
		return "", false
	}
	return url, true
}

func (c *Codec) parseMediaToken(token string) (string, time.Time, error) {
	inner, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", time.Time{}, ErrMalformedToken
	}
	payload, err := c.Decrypt(string(inner))
	if err != nil {
		return "", time.Time{}, ErrMalformedToken
	}
	i := strings.LastIndexByte(payload, '|')
	if i <= 0 {
		return "", time.Time{}, ErrMalformedToken
	}
	ns, err := strconv.ParseInt(payload[i+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, ErrMalformedToken
	}
	return payload[:i], time.Unix(0, ns), nil
}

// GenerateSessionKey 每次通话一个新的 32 字节随机密钥
func GenerateSessionKey() (string, error) {
	key := make([]byte, sessionKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("read session key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
