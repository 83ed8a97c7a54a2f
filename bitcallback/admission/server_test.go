package admission

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secnot/bitcallback/bitcallback/command"
	"github.com/secnot/bitcallback/bitcallback/store"
)

// fakeStore is an in-memory Store fake, keyed the way the real one is
// (int64 subscription ids, string callback ids).
type fakeStore struct {
	mu      sync.Mutex
	subs    map[int64]store.Subscription
	cbs     map[string]store.Callback
	nextSub int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: make(map[int64]store.Subscription), cbs: make(map[string]store.Callback)}
}

func (s *fakeStore) CreateSubscription(address, callbackURL string, expiration time.Time) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	row := store.Subscription{
		ID: s.nextSub, Address: address, CallbackURL: callbackURL,
		Created: time.Now().UTC(), Expiration: expiration, State: store.StateActive,
	}
	s.subs[row.ID] = row
	return row, nil
}

func (s *fakeStore) CancelSubscription(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.subs[id]
	if !ok {
		return assertNotFound{}
	}
	row.State = store.StateCanceled
	s.subs[id] = row
	return nil
}

func (s *fakeStore) GetSubscription(id int64) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.subs[id]
	if !ok {
		return store.Subscription{}, assertNotFound{}
	}
	return row, nil
}

func (s *fakeStore) ListSubscriptions(page, perPage int) ([]store.Subscription, store.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []store.Subscription
	for _, row := range s.subs {
		rows = append(rows, row)
	}
	return rows, store.Page{Total: len(rows), Page: page, PerPage: perPage, Pages: 1}, nil
}

func (s *fakeStore) GetCallback(id string) (store.Callback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.cbs[id]
	if !ok {
		return store.Callback{}, assertNotFound{}
	}
	return row, nil
}

func (s *fakeStore) ListCallbacks(subscriptionID int64, page, perPage int) ([]store.Callback, store.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []store.Callback
	for _, row := range s.cbs {
		if row.SubscriptionID == subscriptionID {
			rows = append(rows, row)
		}
	}
	return rows, store.Page{Total: len(rows), Page: page, PerPage: perPage, Pages: 1}, nil
}

func (s *fakeStore) AckCallback(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.cbs[id]
	if !ok {
		return assertNotFound{}
	}
	row.Acknowledged = true
	s.cbs[id] = row
	return nil
}

func (s *fakeStore) putCallback(cb store.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cbs[cb.ID] = cb
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

// fakeCommands is a ChainmonCommands/DispatchCommands fake backed by a
// buffered channel the test can drain.
type fakeCommands struct {
	ch chan command.Command
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{ch: make(chan command.Command, 16)}
}

func (f *fakeCommands) Commands() chan<- command.Command { return f.ch }

func newTestServer() (*Server, *fakeStore, *fakeCommands, *fakeCommands) {
	st := newFakeStore()
	cmon := newFakeCommands()
	disp := newFakeCommands()
	s := New(st, cmon, disp, time.Hour)
	return s, st, cmon, disp
}

func TestCreateSubscriptionRejectsInvalidAddress(t *testing.T) {
	s, _, _, _ := newTestServer()

	body, _ := json.Marshal(map[string]string{"address": "not-an-address", "callback_url": "http://sink"})
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSubscriptionForwardsCommandAndReturnsEnvelope(t *testing.T) {
	s, _, cmon, _ := newTestServer()

	body, _ := json.Marshal(map[string]string{
		"address":      "1BoatSLRHtKNngkdXEeobR76b53LETtpyT",
		"callback_url": "http://sink/cb",
	})
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp subscriptionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", resp.Address)
	assert.Equal(t, "active", resp.State)

	select {
	case cmd := <-cmon.ch:
		assert.Equal(t, command.NewSubscription, cmd.Kind)
		assert.Equal(t, resp.ID, cmd.Subscription.ID)
	default:
		t.Fatal("expected a NewSubscription command to be forwarded")
	}
}

func TestListSubscriptionsPaginationEnvelope(t *testing.T) {
	s, st, _, _ := newTestServer()
	_, err := st.CreateSubscription("1BoatSLRHtKNngkdXEeobR76b53LETtpyT", "http://sink", time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/subscriptions?page=1&per_page=10", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 10, resp.PerPage)
}

func TestPatchSubscriptionOnlyAcceptsCanceled(t *testing.T) {
	s, st, cmon, _ := newTestServer()
	sub, err := st.CreateSubscription("1BoatSLRHtKNngkdXEeobR76b53LETtpyT", "http://sink", time.Now())
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"state": "suspended"})
	req := httptest.NewRequest(http.MethodPatch, "/subscriptions/1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ = json.Marshal(map[string]string{"state": "canceled"})
	req = httptest.NewRequest(http.MethodPatch, "/subscriptions/1", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case cmd := <-cmon.ch:
		assert.Equal(t, command.CancelSubscription, cmd.Kind)
		assert.Equal(t, sub.ID, cmd.CancelID)
	default:
		t.Fatal("expected a CancelSubscription command to be forwarded")
	}
}

func TestPatchCallbackOnlyAcceptsAcknowledgedTrue(t *testing.T) {
	s, st, _, disp := newTestServer()
	st.putCallback(store.Callback{ID: "cb-1", SubscriptionID: 1})

	body, _ := json.Marshal(map[string]bool{"acknowledged": false})
	req := httptest.NewRequest(http.MethodPatch, "/callbacks/cb-1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ = json.Marshal(map[string]bool{"acknowledged": true})
	req = httptest.NewRequest(http.MethodPatch, "/callbacks/cb-1", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case cmd := <-disp.ch:
		assert.Equal(t, command.AckCallback, cmd.Kind)
		assert.Equal(t, "cb-1", cmd.AckID)
	default:
		t.Fatal("expected an AckCallback command to be forwarded")
	}
}

func TestPatchCallbackRejectsUnknownID(t *testing.T) {
	s, _, _, _ := newTestServer()

	body, _ := json.Marshal(map[string]bool{"acknowledged": true})
	req := httptest.NewRequest(http.MethodPatch, "/callbacks/missing", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchCallbackRejectsAlreadyAcknowledged(t *testing.T) {
	s, st, _, disp := newTestServer()
	st.putCallback(store.Callback{ID: "cb-1", SubscriptionID: 1, Acknowledged: true})

	body, _ := json.Marshal(map[string]bool{"acknowledged": true})
	req := httptest.NewRequest(http.MethodPatch, "/callbacks/cb-1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	select {
	case <-disp.ch:
		t.Fatal("an already-acknowledged callback must not forward a second AckCallback command")
	default:
	}
}

func TestGetCallbackNotFound(t *testing.T) {
	s, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/callbacks/missing", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
