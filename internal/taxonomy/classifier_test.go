package taxonomy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
)

func TestClassifyNetworkFailures(t *testing.T) {
	retryable := []domain.NetworkCode{
		domain.NetworkConnectionRefused,
		domain.NetworkTimedOut,
		domain.NetworkNameNotResolved,
		domain.NetworkUnreachable,
	}
	for _, code := range retryable {
		t.Run(string(code), func(t *testing.T) {
			entry := Classify(&domain.TransportFailure{Code: code, Err: errors.New("dial failed")})
			assert.Equal(t, domain.TaxonomyNetwork, entry.Kind)
			assert.True(t, entry.IsRetryable)
			assert.NotEmpty(t, entry.UserMessage)
			assert.NotEmpty(t, entry.SuggestedActions)
		})
	}

	t.Run("aborted is not retryable", func(t *testing.T) {
		entry := Classify(&domain.TransportFailure{Code: domain.NetworkAborted, Err: errors.New("aborted")})
		assert.Equal(t, domain.TaxonomyNetwork, entry.Kind)
		assert.False(t, entry.IsRetryable)
	})
}

func TestClassifyStatusTable(t *testing.T) {
	tests := []struct {
		status    int
		kind      domain.TaxonomyKind
		retryable bool
	}{
		{400, domain.TaxonomyValidation, false},
		{401, domain.TaxonomyAuth, false},
		{403, domain.TaxonomyAuth, false},
		{404, domain.TaxonomyValidation, false},
		{408, domain.TaxonomyHTTP4xx, true},
		{409, domain.TaxonomyValidation, false},
		{429, domain.TaxonomyHTTP4xx, true},
		{500, domain.TaxonomyHTTP5xx, true},
		{502, domain.TaxonomyHTTP5xx, true},
		{503, domain.TaxonomyHTTP5xx, true},
		{504, domain.TaxonomyHTTP5xx, true},
		{418, domain.TaxonomyUnknown, false},
		{422, domain.TaxonomyUnknown, false},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("status %d", tc.status), func(t *testing.T) {
			entry := Classify(&domain.TransportFailure{StatusCode: tc.status})
			assert.Equal(t, tc.kind, entry.Kind)
			assert.Equal(t, tc.retryable, entry.IsRetryable)
			assert.NotEmpty(t, entry.UserMessage)
			assert.NotEmpty(t, entry.SuggestedActions)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	failure := &domain.TransportFailure{StatusCode: 503, Body: []byte(`{"message":"maintenance"}`)}
	first := Classify(failure)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(failure))
	}
}

func TestClassifyBodyMessageOverride(t *testing.T) {
	t.Run("unknown status uses body message", func(t *testing.T) {
		entry := Classify(&domain.TransportFailure{
			StatusCode: 422,
			Body:       []byte(`{"message":"margin shortfall of 1250.00"}`),
		})
		require.Equal(t, domain.TaxonomyUnknown, entry.Kind)
		assert.Equal(t, "margin shortfall of 1250.00", entry.UserMessage)
	})

	t.Run("known status ignores body message", func(t *testing.T) {
		entry := Classify(&domain.TransportFailure{
			StatusCode: 400,
			Body:       []byte(`{"message":"something broker-specific"}`),
		})
		assert.Equal(t, msgBadRequest, entry.UserMessage)
	})

	t.Run("malformed body falls back to generic message", func(t *testing.T) {
		entry := Classify(&domain.TransportFailure{
			StatusCode: 422,
			Body:       []byte(`not json at all`),
		})
		assert.Equal(t, msgUnknown, entry.UserMessage)
	})

	t.Run("empty message falls back to generic message", func(t *testing.T) {
		entry := Classify(&domain.TransportFailure{
			StatusCode: 422,
			Body:       []byte(`{"message":""}`),
		})
		assert.Equal(t, msgUnknown, entry.UserMessage)
	})
}

func TestClassifyWrappedFailure(t *testing.T) {
	failure := &domain.TransportFailure{StatusCode: 429}
	wrapped := fmt.Errorf("placing order: %w", failure)
	entry := Classify(wrapped)
	assert.Equal(t, domain.TaxonomyHTTP4xx, entry.Kind)
	assert.True(t, entry.IsRetryable)
}

func TestClassifyNonTransportError(t *testing.T) {
	entry := Classify(errors.New("something unexpected"))
	assert.Equal(t, domain.TaxonomyUnknown, entry.Kind)
	assert.False(t, entry.IsRetryable)
	assert.NotEmpty(t, entry.SuggestedActions)
}

func TestHandshakeEntry(t *testing.T) {
	for _, kind := range []domain.TaxonomyKind{
		domain.TaxonomyPopupBlocked,
		domain.TaxonomyTimedOut,
		domain.TaxonomyCancelled,
	} {
		entry := HandshakeEntry(kind)
		assert.Equal(t, kind, entry.Kind)
		assert.False(t, entry.IsRetryable)
		assert.NotEmpty(t, entry.UserMessage)
		assert.NotEmpty(t, entry.SuggestedActions)
	}
}
