package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseairosa/codesalvage-sub000/internal/domain"
)

type flakyWriter struct {
	failures int
	calls    int
	last     *domain.Notification
}

func (w *flakyWriter) CreateNotification(_ context.Context, n *domain.Notification) error {
	w.calls++
	if w.calls <= w.failures {
		return errors.New("store unavailable")
	}
	w.last = n
	return nil
}

func TestNotify_RetriesTransientStoreFailures(t *testing.T) {
	writer := &flakyWriter{failures: 2}
	sink := NewSink(writer)

	err := sink.Notify(context.Background(), "u-1", "transfer_initiated", "title", "message", "http://x/sales/1")
	require.NoError(t, err)

	assert.Equal(t, 3, writer.calls)
	require.NotNil(t, writer.last)
	assert.Equal(t, "u-1", writer.last.UserID)
	assert.Equal(t, "transfer_initiated", writer.last.Kind)
}

func TestNotify_GivesUpAfterBoundedRetries(t *testing.T) {
	writer := &flakyWriter{failures: 10}
	sink := NewSink(writer)

	err := sink.Notify(context.Background(), "u-1", "kind", "t", "m", "")
	assert.Error(t, err)
	assert.Equal(t, 4, writer.calls) // 1 initial + 3 retries
}
