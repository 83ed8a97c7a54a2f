// Package admission is the external REST/HTTP layer: subscription
// and callback CRUD against the durable store, forwarding the matching
// command to the Chain Monitor Task or the Callback Dispatcher Task on
// every state change the core cares about.
package admission

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/secnot/bitcallback/bitcallback/command"
	"github.com/secnot/bitcallback/bitcallback/store"
)

// ChainmonCommands is the subset of chainmon.Task the admission layer needs.
type ChainmonCommands interface {
	Commands() chan<- command.Command
}

// DispatchCommands is the subset of dispatch.Task the admission layer needs.
type DispatchCommands interface {
	Commands() chan<- command.Command
}

// Store is the subset of store.Store the admission layer needs.
type Store interface {
	CreateSubscription(address, callbackURL string, expiration time.Time) (store.Subscription, error)
	CancelSubscription(id int64) error
	GetSubscription(id int64) (store.Subscription, error)
	ListSubscriptions(page, perPage int) ([]store.Subscription, store.Page, error)

	GetCallback(id string) (store.Callback, error)
	ListCallbacks(subscriptionID int64, page, perPage int) ([]store.Callback, store.Page, error)
	AckCallback(id string) error
}

// Server is the admission HTTP layer.
type Server struct {
	store     Store
	chainmon  ChainmonCommands
	dispatch  DispatchCommands
	router    *httprouter.Router
	handler   http.Handler
	defExpiry time.Duration
	srv       *http.Server
}

// New builds a Server wired to store and the two task command channels.
func New(st Store, chainmon ChainmonCommands, dispatch DispatchCommands, defaultExpiry time.Duration) *Server {
	if defaultExpiry <= 0 {
		defaultExpiry = 30 * 24 * time.Hour
	}

	s := &Server{
		store:     st,
		chainmon:  chainmon,
		dispatch:  dispatch,
		router:    httprouter.New(),
		defExpiry: defaultExpiry,
	}

	s.router.POST("/subscriptions", s.createSubscription)
	s.router.GET("/subscriptions", s.listSubscriptions)
	s.router.GET("/subscriptions/:id", s.getSubscription)
	s.router.PATCH("/subscriptions/:id", s.patchSubscription)

	s.router.GET("/subscriptions/:id/callbacks", s.listCallbacks)
	s.router.GET("/callbacks/:id", s.getCallback)
	s.router.PATCH("/callbacks/:id", s.patchCallback)

	s.handler = cors.Default().Handler(s.router)

	return s
}

// ListenAndServe starts the HTTP server on addr, blocking until it returns
// an error (including http.ErrServerClosed on graceful Shutdown).
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.handler}
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server, bounded by ctx. A no-op if
// ListenAndServe was never called.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Handler exposes the wired http.Handler, e.g. for use with a caller-owned
// *http.Server (so Shutdown can be driven externally).
func (s *Server) Handler() http.Handler {
	return s.handler
}
