package service

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hanifauzan/greenmart/internal/cart"
	"github.com/hanifauzan/greenmart/internal/errors"
)

type fakeSession struct {
	authenticated bool
	identity      string
}

func (s *fakeSession) Authenticated(context.Context) bool { return s.authenticated }

func (s *fakeSession) Identity(context.Context) (string, error) {
	if !s.authenticated {
		return "", errors.ErrUnauthenticated
	}
	return s.identity, nil
}

func (s *fakeSession) Token(context.Context) (string, error) {
	if !s.authenticated {
		return "", errors.ErrUnauthenticated
	}
	return "test-token", nil
}

// memStore is an in-memory Store that counts calls, so tests can assert on
// the reload-after-write pattern and on writes that must not happen.
type memStore struct {
	mu     sync.Mutex
	carts  map[string]cart.Cart
	tariff cart.Tariff

	loadCount   int
	saveCount   int
	updateCount int
	removeCount int
	clearCount  int

	failNext error
}

func newMemStore() *memStore {
	return &memStore{carts: map[string]cart.Cart{}, tariff: cart.DefaultTariff()}
}

func (s *memStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *memStore) Load(_ context.Context, identity string) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadCount++
	crt, ok := s.carts[identity]
	if !ok {
		return cart.Empty(), nil
	}
	return crt.Clone(), nil
}

func (s *memStore) Save(_ context.Context, identity string, crt cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.saveCount++
	s.carts[identity] = crt.Clone()
	return nil
}

func (s *memStore) UpdateItemQuantity(
	_ context.Context,
	identity string,
	productId string,
	quantity int32,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.updateCount++
	crt := s.carts[identity]
	i := crt.IndexOf(productId)
	if i < 0 {
		return &errors.PersistenceError{Op: "updateItemQuantity", Err: errors.ErrItemNotFound}
	}
	crt.Items[i].Quantity = quantity
	crt.Recalculate(s.tariff)
	s.carts[identity] = crt
	return nil
}

func (s *memStore) RemoveItem(_ context.Context, identity string, productId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.removeCount++
	crt := s.carts[identity]
	i := crt.IndexOf(productId)
	if i < 0 {
		return nil
	}
	crt.Items = append(crt.Items[:i], crt.Items[i+1:]...)
	crt.Recalculate(s.tariff)
	s.carts[identity] = crt
	return nil
}

func (s *memStore) Clear(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.clearCount++
	delete(s.carts, identity)
	return nil
}

func (s *memStore) seed(identity string, items ...cart.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	crt := cart.Empty()
	crt.Items = cart.CloneItems(items)
	crt.Recalculate(s.tariff)
	s.carts[identity] = crt
}

func lineItem(productId string, price int64, quantity int32, minimum int32) cart.LineItem {
	return cart.LineItem{
		ProductId:            productId,
		Title:                "title-" + productId,
		Price:                decimal.NewFromInt(price),
		Quantity:             quantity,
		Unit:                 "kg",
		MinimumOrderQuantity: minimum,
		SellerId:             "seller-1",
		SellerName:           "Green Farm",
	}
}

const testIdentity = "buyer@greenmart.store"

func newTestService(authenticated bool) (*CartService, *memStore, *memStore, *fakeSession) {
	session := &fakeSession{authenticated: authenticated, identity: testIdentity}
	guest := newMemStore()
	remote := newMemStore()
	svc := NewCartService(session, guest, remote, "guest", cart.DefaultTariff())
	return svc, guest, remote, session
}
