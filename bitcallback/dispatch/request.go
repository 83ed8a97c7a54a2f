package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec"
)

// subscriptionJSON is the "subscription" sub-object of the outbound
// callback request body.
type subscriptionJSON struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
}

// callbackJSON is the outbound callback request body. Acknowledged
// is always false: the request is only ever sent while the callback is
// still unacknowledged.
type callbackJSON struct {
	ID           string           `json:"id"`
	Subscription subscriptionJSON `json:"subscription"`
	Txid         string           `json:"txid"`
	Amount       int64            `json:"amount"`
	Created      string           `json:"created"`
	LastRetry    string           `json:"last_retry"`
	Retries      int32            `json:"retries"`
	Acknowledged bool             `json:"acknowledged"`
	Signature    string           `json:"signature"`
}

// BuildRequestBody renders record as the signed JSON body POSTed to its
// callback URL.
func BuildRequestBody(record CallbackRecord, signKey *btcec.PrivateKey) ([]byte, error) {
	sig, err := Sign(signKey, SignPayload{
		ID:      record.ID,
		Created: record.Created,
		Txid:    record.Txid,
		Address: record.Subscription.Address,
		Amount:  record.Amount,
	})
	if err != nil {
		return nil, err
	}

	body := callbackJSON{
		ID: record.ID,
		Subscription: subscriptionJSON{
			ID:      record.Subscription.ID,
			Address: record.Subscription.Address,
		},
		Txid:         record.Txid,
		Amount:       record.Amount,
		Created:      FormatTimestamp(record.Created),
		LastRetry:    FormatTimestamp(record.LastRetry),
		Retries:      record.Retries,
		Acknowledged: false,
		Signature:    sig,
	}

	return json.Marshal(body)
}

// HTTPSender is the production Sender: a plain POST with a per-request
// timeout, body and status otherwise ignored: the HTTP outcome
// never drives retry logic, only the later Ack does.
type HTTPSender struct {
	Client *http.Client
}

// NewHTTPSender builds an HTTPSender with no client-wide timeout; each
// Send call applies its own via the passed timeout.
func NewHTTPSender() *HTTPSender {
	return &HTTPSender{Client: &http.Client{}}
}

func (s *HTTPSender) Send(url string, body []byte, timeout time.Duration) {
	client := s.Client
	if timeout > 0 {
		c := *client
		c.Timeout = timeout
		client = &c
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Debugf("callback POST to %s failed: %v", url, err)
		return
	}
	resp.Body.Close()
}
