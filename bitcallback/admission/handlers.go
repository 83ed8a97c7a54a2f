package admission

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/secnot/bitcallback/bitcallback/command"
	"github.com/secnot/bitcallback/bitcallback/store"
)

type subscriptionJSON struct {
	ID          int64     `json:"id"`
	Address     string    `json:"address"`
	CallbackURL string    `json:"callback_url"`
	Created     time.Time `json:"created"`
	Expiration  time.Time `json:"expiration"`
	State       string    `json:"state"`
}

func subscriptionToJSON(s store.Subscription) subscriptionJSON {
	return subscriptionJSON{
		ID:          s.ID,
		Address:     s.Address,
		CallbackURL: s.CallbackURL,
		Created:     s.Created,
		Expiration:  s.Expiration,
		State:       string(s.State),
	}
}

type callbackJSON struct {
	ID             string `json:"id"`
	SubscriptionID int64  `json:"subscription_id"`
	Txid           string `json:"txid"`
	Amount         int64  `json:"amount"`
	Created        string `json:"created"`
	LastRetry      string `json:"last_retry"`
	Retries        int32  `json:"retries"`
	Acknowledged   bool   `json:"acknowledged"`
}

func callbackToJSON(c store.Callback) callbackJSON {
	return callbackJSON{
		ID:             c.ID,
		SubscriptionID: c.SubscriptionID,
		Txid:           c.Txid,
		Amount:         c.Amount,
		Created:        c.Created.UTC().Format(time.RFC3339),
		LastRetry:      c.LastRetry.UTC().Format(time.RFC3339),
		Retries:        c.Retries,
		Acknowledged:   c.Acknowledged,
	}
}

// pageResponse is the pagination envelope.
type pageResponse struct {
	Items   interface{} `json:"items"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
	Total   int         `json:"total"`
	Pages   int         `json:"pages"`
}

func newPageResponse(items interface{}, p store.Page) pageResponse {
	return pageResponse{Items: items, Page: p.Page, PerPage: p.PerPage, Total: p.Total, Pages: p.Pages}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func pagingParams(r *http.Request) (page, perPage int) {
	page, perPage = 1, 50
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perPage = n
		}
	}
	return page, perPage
}

type createSubscriptionRequest struct {
	Address     string     `json:"address"`
	CallbackURL string     `json:"callback_url"`
	Expiration  *time.Time `json:"expiration"`
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := ValidateAddress(req.Address); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	expiration := time.Now().UTC().Add(s.defExpiry)
	if req.Expiration != nil {
		expiration = req.Expiration.UTC()
	}

	sub, err := s.store.CreateSubscription(req.Address, req.CallbackURL, expiration)
	if err != nil {
		log.Errorf("failed to create subscription for %s: %v", req.Address, err)
		writeError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	s.chainmon.Commands() <- command.NewSubscriptionCmd(command.SubscriptionData{
		ID:          sub.ID,
		Address:     sub.Address,
		CallbackURL: sub.CallbackURL,
		Expiration:  sub.Expiration,
	})

	writeJSON(w, http.StatusCreated, subscriptionToJSON(sub))
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	page, perPage := pagingParams(r)

	rows, p, err := s.store.ListSubscriptions(page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	items := make([]subscriptionJSON, len(rows))
	for i, r := range rows {
		items[i] = subscriptionToJSON(r)
	}

	writeJSON(w, http.StatusOK, newPageResponse(items, p))
}

func (s *Server) getSubscription(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}

	sub, err := s.store.GetSubscription(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}

	writeJSON(w, http.StatusOK, subscriptionToJSON(sub))
}

type patchSubscriptionRequest struct {
	State string `json:"state"`
}

func (s *Server) patchSubscription(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}

	var req patchSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.State != string(store.StateCanceled) {
		writeError(w, http.StatusBadRequest, "only state=canceled is accepted")
		return
	}

	if err := s.store.CancelSubscription(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel subscription")
		return
	}

	s.chainmon.Commands() <- command.CancelSubscriptionCmd(id)

	sub, err := s.store.GetSubscription(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	writeJSON(w, http.StatusOK, subscriptionToJSON(sub))
}

func (s *Server) listCallbacks(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}

	page, perPage := pagingParams(r)

	rows, p, err := s.store.ListCallbacks(id, page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list callbacks")
		return
	}

	items := make([]callbackJSON, len(rows))
	for i, r := range rows {
		items[i] = callbackToJSON(r)
	}

	writeJSON(w, http.StatusOK, newPageResponse(items, p))
}

func (s *Server) getCallback(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	cb, err := s.store.GetCallback(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "callback not found")
		return
	}

	writeJSON(w, http.StatusOK, callbackToJSON(cb))
}

type patchCallbackRequest struct {
	Acknowledged bool `json:"acknowledged"`
}

func (s *Server) patchCallback(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	var req patchCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if !req.Acknowledged {
		writeError(w, http.StatusBadRequest, "only acknowledged=true is accepted")
		return
	}

	cb, err := s.store.GetCallback(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "callback not found")
		return
	}
	if cb.Acknowledged {
		writeError(w, http.StatusForbidden, "callback was already acknowledged")
		return
	}

	if err := s.store.AckCallback(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to acknowledge callback")
		return
	}

	s.dispatch.Commands() <- command.AckCallbackCmd(id)

	cb, err = s.store.GetCallback(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "callback not found")
		return
	}
	writeJSON(w, http.StatusOK, callbackToJSON(cb))
}
