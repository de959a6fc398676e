package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/hanifauzan/greenmart/internal/cart"
	"github.com/hanifauzan/greenmart/internal/errors"
)

type staticSession struct {
	token string
	err   error
}

func (s *staticSession) Authenticated(context.Context) bool { return s.err == nil }

func (s *staticSession) Identity(context.Context) (string, error) {
	return "buyer@greenmart.store", s.err
}

func (s *staticSession) Token(context.Context) (string, error) { return s.token, s.err }

// fakeCartApi is an in-memory rendition of the cart REST endpoints.
type fakeCartApi struct {
	carts       map[string]cart.Cart
	lastAuth    string
	failStatus  int
	saveBodies  []upsertCartBody
	quantityPut map[string]int32
}

func newFakeCartApi() *fakeCartApi {
	return &fakeCartApi{carts: map[string]cart.Cart{}, quantityPut: map[string]int32{}}
}

func (a *fakeCartApi) router() *mux.Router {
	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a.lastAuth = r.Header.Get("Authorization")
			if a.failStatus != 0 {
				w.WriteHeader(a.failStatus)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	router.HandleFunc("/carts", a.upsertCart).Methods(http.MethodPost)
	router.HandleFunc("/carts/{identity}", a.getCart).Methods(http.MethodGet)
	router.HandleFunc("/carts/{identity}", a.clearCart).Methods(http.MethodDelete)
	router.HandleFunc("/carts/{identity}/items/{productId}", a.updateItem).
		Methods(http.MethodPut)
	router.HandleFunc("/carts/{identity}/items/{productId}", a.removeItem).
		Methods(http.MethodDelete)
	return router
}

func (a *fakeCartApi) getCart(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	crt, ok := a.carts[identity]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(cartEnvelope{Cart: crt})
}

func (a *fakeCartApi) upsertCart(w http.ResponseWriter, r *http.Request) {
	body := upsertCartBody{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	a.saveBodies = append(a.saveBodies, body)
	a.carts[body.Identity] = cart.Cart{
		Items:          body.Items,
		Region:         body.Region,
		TotalItems:     body.TotalItems,
		Subtotal:       body.Subtotal,
		DeliveryCharge: body.DeliveryCharge,
		TotalAmount:    body.TotalAmount,
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *fakeCartApi) updateItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	crt, ok := a.carts[vars["identity"]]
	if !ok || crt.IndexOf(vars["productId"]) < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	body := updateQuantityBody{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	crt.Items[crt.IndexOf(vars["productId"])].Quantity = body.Quantity
	a.carts[vars["identity"]] = crt
	a.quantityPut[vars["productId"]] = body.Quantity
	w.WriteHeader(http.StatusOK)
}

func (a *fakeCartApi) removeItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	crt, ok := a.carts[vars["identity"]]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	i := crt.IndexOf(vars["productId"])
	if i < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	crt.Items = append(crt.Items[:i], crt.Items[i+1:]...)
	a.carts[vars["identity"]] = crt
	w.WriteHeader(http.StatusNoContent)
}

func (a *fakeCartApi) clearCart(w http.ResponseWriter, r *http.Request) {
	delete(a.carts, mux.Vars(r)["identity"])
	w.WriteHeader(http.StatusNoContent)
}

func newRemoteFixture(t *testing.T) (*RemoteStore, *fakeCartApi) {
	t.Helper()
	api := newFakeCartApi()
	server := httptest.NewServer(api.router())
	t.Cleanup(server.Close)
	session := &staticSession{token: "test-token"}
	return NewRemoteStore(server.URL, 5*time.Second, session), api
}

const identity = "buyer@greenmart.store"

func TestRemoteStoreLoad(t *testing.T) {
	store, api := newRemoteFixture(t)
	crt := cart.Empty()
	crt.Items = []cart.LineItem{testItem("A", 50, 2)}
	crt.Recalculate(cart.DefaultTariff())
	api.carts[identity] = crt

	loaded, err := store.Load(context.Background(), identity)

	assert.NoError(t, err)
	assert.Len(t, loaded.Items, 1)
	assert.Equal(t, "A", loaded.Items[0].ProductId)
	assert.Equal(t, "Bearer test-token", api.lastAuth)
}

func TestRemoteStoreLoadMissingCartIsEmpty(t *testing.T) {
	store, _ := newRemoteFixture(t)

	loaded, err := store.Load(context.Background(), identity)

	assert.NoError(t, err)
	assert.NotNil(t, loaded.Items)
	assert.True(t, loaded.IsEmpty())
}

func TestRemoteStoreLoadServerErrorIsRetryable(t *testing.T) {
	store, api := newRemoteFixture(t)
	api.failStatus = http.StatusInternalServerError

	_, err := store.Load(context.Background(), identity)

	var persistenceError *errors.PersistenceError
	assert.ErrorAs(t, err, &persistenceError)
	assert.True(t, persistenceError.Retryable)
	assert.Equal(t, http.StatusInternalServerError, persistenceError.StatusCode)
}

func TestRemoteStoreLoadClientErrorIsNotRetryable(t *testing.T) {
	store, api := newRemoteFixture(t)
	api.failStatus = http.StatusForbidden

	_, err := store.Load(context.Background(), identity)

	var persistenceError *errors.PersistenceError
	assert.ErrorAs(t, err, &persistenceError)
	assert.False(t, persistenceError.Retryable)
}

func TestRemoteStoreSaveSendsFullDocument(t *testing.T) {
	store, api := newRemoteFixture(t)
	crt := cart.Empty()
	crt.Items = []cart.LineItem{testItem("A", 50, 2), testItem("B", 30, 3)}
	crt.Region = "dhaka"
	crt.Recalculate(cart.DefaultTariff())

	err := store.Save(context.Background(), identity, crt)

	assert.NoError(t, err)
	assert.Len(t, api.saveBodies, 1)
	body := api.saveBodies[0]
	assert.Equal(t, identity, body.Identity)
	assert.Len(t, body.Items, 2)
	assert.Equal(t, int32(5), body.TotalItems)
	assert.True(t, decimal.NewFromInt(190).Equal(body.Subtotal))
	assert.True(t, body.TotalAmount.Equal(body.Subtotal.Add(body.DeliveryCharge)))
}

func TestRemoteStoreUpdateItemQuantity(t *testing.T) {
	store, api := newRemoteFixture(t)
	crt := cart.Empty()
	crt.Items = []cart.LineItem{testItem("A", 50, 2)}
	api.carts[identity] = crt

	err := store.UpdateItemQuantity(context.Background(), identity, "A", 9)

	assert.NoError(t, err)
	assert.Equal(t, int32(9), api.quantityPut["A"])

	err = store.UpdateItemQuantity(context.Background(), identity, "missing", 1)
	assert.ErrorIs(t, err, errors.ErrItemNotFound)
}

func TestRemoteStoreRemoveItem(t *testing.T) {
	store, api := newRemoteFixture(t)
	crt := cart.Empty()
	crt.Items = []cart.LineItem{testItem("A", 50, 2)}
	api.carts[identity] = crt

	err := store.RemoveItem(context.Background(), identity, "A")
	assert.NoError(t, err)
	assert.Empty(t, api.carts[identity].Items)

	// A 404 from the backend means the item is already gone.
	err = store.RemoveItem(context.Background(), identity, "A")
	assert.NoError(t, err)
}

func TestRemoteStoreClear(t *testing.T) {
	store, api := newRemoteFixture(t)
	crt := cart.Empty()
	crt.Items = []cart.LineItem{testItem("A", 50, 2)}
	api.carts[identity] = crt

	err := store.Clear(context.Background(), identity)

	assert.NoError(t, err)
	_, ok := api.carts[identity]
	assert.False(t, ok)
}

func TestRemoteStoreConnectionFailureIsRetryable(t *testing.T) {
	session := &staticSession{token: "test-token"}
	store := NewRemoteStore("http://127.0.0.1:1", 500*time.Millisecond, session)

	_, err := store.Load(context.Background(), identity)

	var persistenceError *errors.PersistenceError
	assert.ErrorAs(t, err, &persistenceError)
	assert.True(t, persistenceError.Retryable)
}

func TestRemoteStoreWithoutSessionTokenFails(t *testing.T) {
	session := &staticSession{err: errors.ErrUnauthenticated}
	store := NewRemoteStore("http://127.0.0.1:1", time.Second, session)

	_, err := store.Load(context.Background(), identity)

	var cartError *errors.CartError
	assert.ErrorAs(t, err, &cartError)
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
}
