package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("+7 (700) 123-45-67")
	require.NoError(t, err)
	assert.Equal(t, "77001234567", got)

	got, err = NormalizePhone("8700 123 4567")
	require.NoError(t, err)
	assert.Equal(t, "87001234567", got)

	_, err = NormalizePhone("12345")
	assert.Error(t, err)

	_, err = NormalizePhone("not a phone")
	assert.Error(t, err)
}

func TestEndOfMonth(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), EndOfMonth(now))

	// December rolls over into the next year.
	now = time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), EndOfMonth(now))
}

func TestClampPerPage(t *testing.T) {
	assert.Equal(t, 20, ClampPerPage(0, 20))
	assert.Equal(t, 20, ClampPerPage(-5, 20))
	assert.Equal(t, 50, ClampPerPage(50, 20))
	assert.Equal(t, 100, ClampPerPage(500, 20))
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Set("k", []byte("v"), 0)
	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	cache.Set("short", []byte("x"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok = cache.Get("short")
	assert.False(t, ok)

	cache.Delete("k")
	_, ok = cache.Get("k")
	assert.False(t, ok)
}

func TestValidateStruct(t *testing.T) {
	type form struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}

	errs := ValidateStruct(form{Email: "not-an-email", Password: "short"})
	require.NotNil(t, errs)
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")

	assert.Nil(t, ValidateStruct(form{Email: "a@example.com", Password: "longenough"}))
}
