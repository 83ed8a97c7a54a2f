package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestBodyIsVerifiable(t *testing.T) {
	key, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)

	record := CallbackRecord{
		ID:           "cb-xyz",
		Subscription: SubscriptionRef{ID: 7, Address: "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"},
		CallbackURL:  "http://example.org/hook",
		Txid:         "abad1dea",
		Amount:       -500,
		Created:      time.Now().UTC(),
		LastRetry:    time.Now().UTC(),
		Retries:      2,
	}

	body, err := BuildRequestBody(record, key)
	require.NoError(t, err)

	var decoded callbackJSON
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, record.ID, decoded.ID)
	assert.Equal(t, record.Subscription.ID, decoded.Subscription.ID)
	assert.Equal(t, record.Amount, decoded.Amount)
	assert.False(t, decoded.Acknowledged)

	payload := SignPayload{
		ID:      record.ID,
		Created: record.Created,
		Txid:    record.Txid,
		Address: record.Subscription.Address,
		Amount:  record.Amount,
	}
	assert.True(t, Verify(key.PubKey(), payload, decoded.Signature))
}
