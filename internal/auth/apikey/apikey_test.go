package apikey

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls int
	info  *KeyInfo
	err   error
}

func (s *countingSource) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	s.calls++
	return s.info, s.err
}

func TestHashKeyIsDeterministic(t *testing.T) {
	a := HashKey("secret-key")
	b := HashKey("secret-key")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, HashKey("other-key"))
}

func TestGenerateRawKeyIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		key := generateRawKey()
		require.Len(t, key, 64)
		_, dup := seen[key]
		require.False(t, dup)
		seen[key] = struct{}{}
	}
}

func TestCachedValidatorCachesSuccess(t *testing.T) {
	src := &countingSource{info: &KeyInfo{ID: "k1", Name: "ops", RateLimit: 100}}
	cv := NewCachedValidator(src, time.Minute)

	for range 5 {
		info, err := cv.Validate(context.Background(), "raw-key")
		require.NoError(t, err)
		assert.Equal(t, "k1", info.ID)
	}
	assert.Equal(t, 1, src.calls)
}

func TestCachedValidatorCachesRejections(t *testing.T) {
	src := &countingSource{err: ErrInvalidKey}
	cv := NewCachedValidator(src, time.Minute)

	for range 3 {
		_, err := cv.Validate(context.Background(), "bad-key")
		assert.ErrorIs(t, err, ErrInvalidKey)
	}
	assert.Equal(t, 1, src.calls)
}

func TestCachedValidatorSkipsTransientErrors(t *testing.T) {
	src := &countingSource{err: errors.New("connection refused")}
	cv := NewCachedValidator(src, time.Minute)

	_, err := cv.Validate(context.Background(), "raw-key")
	require.Error(t, err)
	_, err = cv.Validate(context.Background(), "raw-key")
	require.Error(t, err)

	assert.Equal(t, 2, src.calls)
}

func TestCachedValidatorExpiry(t *testing.T) {
	src := &countingSource{info: &KeyInfo{ID: "k1"}}
	cv := NewCachedValidator(src, 10*time.Millisecond)

	_, err := cv.Validate(context.Background(), "raw-key")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = cv.Validate(context.Background(), "raw-key")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCachedValidatorInvalidate(t *testing.T) {
	src := &countingSource{info: &KeyInfo{ID: "k1"}}
	cv := NewCachedValidator(src, time.Minute)

	_, err := cv.Validate(context.Background(), "raw-key")
	require.NoError(t, err)

	cv.Invalidate("raw-key")

	_, err = cv.Validate(context.Background(), "raw-key")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCachedValidatorDistinguishesKeys(t *testing.T) {
	src := &countingSource{info: &KeyInfo{ID: "k1"}}
	cv := NewCachedValidator(src, time.Minute)

	_, _ = cv.Validate(context.Background(), "key-a")
	_, _ = cv.Validate(context.Background(), "key-b")
	assert.Equal(t, 2, src.calls)
}
