package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"required ok", Required("dsn", "postgres://db"), nil},
		{"required empty", Required("dsn", ""), ErrRequired},
		{"required blank", Required("dsn", "   "), ErrRequired},
		{"non-negative ok", NonNegative("min_size", 0), nil},
		{"non-negative bad", NonNegative("min_size", -1), ErrOutOfRange},
		{"duration ok", NonNegativeDuration("idle_timeout", 0), nil},
		{"duration bad", NonNegativeDuration("idle_timeout", -time.Second), ErrOutOfRange},
		{"one of ok", OneOf("backend", "sql", "sql", "redis"), nil},
		{"one of bad", OneOf("backend", "mongo", "sql", "redis"), ErrInvalidFormat},
		{"host port ok", HostPort("listen", "127.0.0.1:8080"), nil},
		{"host port empty", HostPort("listen", ""), ErrRequired},
		{"host port bad", HostPort("listen", "localhost"), ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr == nil {
				assert.NoError(t, tt.err)
				return
			}
			assert.ErrorIs(t, tt.err, tt.wantErr)
		})
	}
}

func TestResultError(t *testing.T) {
	err := OneOf("backend", "mongo", "sql", "redis")
	assert.EqualError(t, err, `backend: must be one of sql, redis, got "mongo"`)

	assert.EqualError(t, NewResult("", "bare", nil), "bare")
}

func TestErrors(t *testing.T) {
	var errs Errors
	errs.Add(nil)
	assert.False(t, errs.HasErrors())
	assert.NoError(t, errs.Err())

	errs.Add(Required("dsn", ""))
	assert.EqualError(t, errs.Err(), "dsn: is required")

	sentinel := errors.New("pool bounds")
	errs.Add(sentinel)
	err := errs.Err()
	assert.EqualError(t, err, "multiple validation errors: dsn: is required; pool bounds")
	assert.ErrorIs(t, err, ErrRequired)
	assert.ErrorIs(t, err, sentinel)

	var res *Result
	assert.True(t, errors.As(err, &res))
	assert.Equal(t, "dsn", res.Field)
}
