package infrastructure

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"labspace/internal/observability"
)

func TestTimeOperationRecordsResult(t *testing.T) {
	before := testutil.CollectAndCount(observability.StoreOperationDuration)

	assert.NoError(t, TimeOperation("test.time_operation", func() error { return nil }))
	boom := errors.New("boom")
	assert.ErrorIs(t, TimeOperation("test.time_operation", func() error { return boom }), boom)

	// One series per result label.
	assert.Equal(t, before+2, testutil.CollectAndCount(observability.StoreOperationDuration))

	assert.NoError(t, TimeOperation("test.time_operation", func() error { return nil }))
	assert.Equal(t, before+2, testutil.CollectAndCount(observability.StoreOperationDuration))
}
