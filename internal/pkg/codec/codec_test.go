package codec

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := New("unit-test-secret", opts...)
	require.NoError(t, err)
	return c
}

func TestNew_EmptySecret(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	inputs := []string{
		"",
		"hello",
		"多字节 文本 🙂",
		strings.Repeat("x", 64*1024),
		"pipe|inside|text",
	}
	for _, in := range inputs {
		ct, err := c.Encrypt(in)
		require.NoError(t, err)
		assert.NotEqual(t, in, ct)

		out, err := c.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	c := newTestCodec(t)

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecrypt_Malformed(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Decrypt("not base64 !!")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrMalformed)

	ct, err := c.Encrypt("payload")
	require.NoError(t, err)
	raw, _ := base64.StdEncoding.DecodeString(ct)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecrypt_DifferentSecret(t *testing.T) {
	a := newTestCodec(t)
	b, err := New("another-secret")
	require.NoError(t, err)

	ct, err := a.Encrypt("secret text")
	require.NoError(t, err)
	_, err = b.Decrypt(ct)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMediaToken_Lifecycle(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, WithClock(clock.Now))
	ttl := 60 * time.Minute
	url := "2026/01/01/abc.png"

	token, err := c.MintMediaToken(url)
	require.NoError(t, err)

	got, ok := c.ResolveMediaToken(token, ttl)
	require.True(t, ok)
	assert.Equal(t, url, got)

	clock.Advance(ttl)
	got, ok = c.ResolveMediaToken(token, ttl)
	assert.True(t, ok, "still valid at exactly issuedAt+ttl")
	assert.Equal(t, url, got)

	clock.Advance(time.Millisecond)
	got, ok = c.ResolveMediaToken(token, ttl)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestMediaToken_SubMillisecondIssueTime(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 700_123, time.UTC)}
	c := newTestCodec(t, WithClock(clock.Now))
	ttl := time.Minute

	token, err := c.MintMediaToken("chat/1/a.png")
	require.NoError(t, err)

	clock.Advance(ttl)
	_, ok := c.ResolveMediaToken(token, ttl)
	assert.True(t, ok, "签发时间不能被截断，否则会提前过期")

	clock.Advance(time.Nanosecond)
	_, ok = c.ResolveMediaToken(token, ttl)
	assert.False(t, ok)
}

func TestMediaToken_URLWithPipe(t *testing.T) {
	c := newTestCodec(t)
	url := "https://cdn.example.com/a|b.png"

	token, err := c.MintMediaToken(url)
	require.NoError(t, err)

	got, ok := c.ResolveMediaToken(token, time.Minute)
	require.True(t, ok)
	assert.Equal(t, url, got)
}

func TestMediaToken_Malformed(t *testing.T) {
	c := newTestCodec(t)

	for _, token := range []string{"", "???", base64.RawURLEncoding.EncodeToString([]byte("garbage"))} {
		got, ok := c.ResolveMediaToken(token, time.Hour)
		assert.False(t, ok)
		assert.Empty(t, got)
	}

	// 合法密文但载荷里没有时间戳
	ct, err := c.Encrypt("no-timestamp")
	require.NoError(t, err)
	_, ok := c.ResolveMediaToken(base64.RawURLEncoding.EncodeToString([]byte(ct)), time.Hour)
	assert.False(t, ok)
}

func TestGenerateSessionKey(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		key, err := GenerateSessionKey()
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(key)
		require.NoError(t, err)
		assert.Len(t, raw, 32)

		_, dup := seen[key]
		assert.False(t, dup)
		seen[key] = struct{}{}
	}
}
