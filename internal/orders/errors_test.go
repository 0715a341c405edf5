package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/store"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestClassify(t *testing.T) {
	engineErr := newError(KindConflict, CodeAlreadyPaid, "order is already paid")
	cases := []struct {
		name string
		err  error
		kind Kind
		code string
	}{
		{"engine error passes through", fmt.Errorf("wrapped: %w", engineErr), KindConflict, CodeAlreadyPaid},
		{"conflict", fmt.Errorf("aborted: %w", store.ErrConflict), KindTransactionFailure, CodeConcurrentWrite},
		{"vanished", store.ErrNotFound, KindTransactionFailure, CodeReferenceDisappeared},
		{"deadline", context.DeadlineExceeded, KindTransactionFailure, CodeConcurrentWrite},
		{"unknown", errors.New("disk on fire"), KindInternal, CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			assert.Equal(t, tc.kind, KindOf(got))
			assert.Equal(t, tc.code, CodeOf(got))
		})
	}
	assert.NoError(t, classify(nil))
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := classify(fmt.Errorf("commit: %w", store.ErrConflict))
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Contains(t, err.Error(), "transaction_failure")
}

func TestForeignErrorsAreInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("x")))
	assert.Equal(t, "", CodeOf(errors.New("x")))
	assert.False(t, IsKind(nil, KindInternal))
}
