package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want FailureKind
	}{
		{ErrInventoryFull, KindBusinessBlocked},
		{ErrInsufficientFunds, KindBusinessBlocked},
		{ErrSellingSlotsFull, KindBusinessBlocked},
		{ErrSessionInvalid, KindSessionInvalid},
		{ErrLoginFailed, KindSessionInvalid},
		{ErrConfirmationMissing, KindIntegrity},
		{ErrInvalidConfiguration, KindConfiguration},
		{ErrBrowserCrashed, KindFatal},
		{ErrStoreUnavailable, KindFatal},
		{ErrTimeout, KindTransient},
		{ErrNotFound, KindTransient},
		{errors.New("mystery"), KindTransient},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}

func TestClassifySeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("stage login: %w", ErrLoginFailed)
	assert.Equal(t, KindSessionInvalid, Classify(wrapped))
	assert.False(t, IsTransient(wrapped))

	wrapped = fmt.Errorf("probe: %w", ErrTimeout)
	assert.True(t, IsTransient(wrapped))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "fatal", KindFatal.String())
	assert.Equal(t, "business_blocked", KindBusinessBlocked.String())
}
