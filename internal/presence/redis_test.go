package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisValueRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC)

	status, got, err := decodeValue(encodeValue(StatusAway, at))
	require.NoError(t, err)
	assert.Equal(t, StatusAway, status)
	assert.True(t, at.Equal(got))

	_, _, err = decodeValue("online")
	assert.Error(t, err)
	_, _, err = decodeValue("online|soon")
	assert.Error(t, err)
}
