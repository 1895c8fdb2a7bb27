package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelaySeconds(t *testing.T) {
	d := retryDelay("3", 1)
	assert.GreaterOrEqual(t, d, 3*time.Second)
	assert.Less(t, d, 4*time.Second)
}

func TestRetryDelayHTTPDate(t *testing.T) {
	at := time.Now().Add(5 * time.Second).UTC()
	d := retryDelay(at.Format(time.RFC1123), 1)
	assert.Greater(t, d, 3*time.Second)
	assert.LessOrEqual(t, d, 5*time.Second)
}

func TestRetryDelayPastDateIsZero(t *testing.T) {
	at := time.Now().Add(-time.Hour).UTC()
	assert.Equal(t, time.Duration(0), retryDelay(at.Format(time.RFC1123), 1))
}

func TestRetryDelayExponential(t *testing.T) {
	d := retryDelay("", 1)
	assert.GreaterOrEqual(t, d, 2*time.Second)
	assert.Less(t, d, 3*time.Second)

	d = retryDelay("", 2)
	assert.GreaterOrEqual(t, d, 4*time.Second)
	assert.Less(t, d, 5*time.Second)
}

func TestRetryDelayCapped(t *testing.T) {
	assert.Equal(t, maxBackoff, retryDelay("", 10))
}

func TestRetryDelayUnparseableHeaderFallsBack(t *testing.T) {
	d := retryDelay("soon", 1)
	assert.GreaterOrEqual(t, d, 2*time.Second)
	assert.Less(t, d, 3*time.Second)
}

func TestRetryDelayNegativeSecondsFallsBack(t *testing.T) {
	d := retryDelay("-5", 1)
	assert.GreaterOrEqual(t, d, 2*time.Second)
	assert.Less(t, d, 3*time.Second)
}
