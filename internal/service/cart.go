// Package service holds the cart engine: the synchronization facade every
// caller mutates cart state through, the login-time merge, and the draft
// overlay used by the interactive edit screen.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hanifauzan/greenmart/internal/auth"
	"github.com/hanifauzan/greenmart/internal/cart"
	"github.com/hanifauzan/greenmart/internal/errors"
	"github.com/hanifauzan/greenmart/internal/log"
	"github.com/hanifauzan/greenmart/internal/otel"
	"github.com/hanifauzan/greenmart/internal/store"
)

type OpType string

const (
	OpUpdate OpType = "update"
	OpRemove OpType = "remove"
)

// Operation is one entry of a BatchUpdate. Quantity is only read for update
// operations.
type Operation struct {
	Type      OpType `json:"type"`
	ProductId string `json:"productId"`
	Quantity  int32  `json:"quantity,omitempty"`
}

// CartService routes every cart operation to the active store, guest or
// remote, decided by the auth session on each call. Every mutation re-reads
// the backing store afterwards so the in-memory view never drifts from it for
// longer than one operation; ClearCart is the one exception. Mutations
// against the same identity are serialized through a per-identity mutex.
type CartService struct {
	session auth.Session
	guest   store.Store
	remote  store.Store
	guestId string
	tariff  cart.Tariff

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	current   cart.Cart
	mergedFor string
}

func NewCartService(
	session auth.Session,
	guest store.Store,
	remote store.Store,
	guestId string,
	tariff cart.Tariff,
) *CartService {
	return &CartService{
		session: session,
		guest:   guest,
		remote:  remote,
		guestId: guestId,
		tariff:  tariff,
		locks:   map[string]*sync.Mutex{},
		current: cart.Empty(),
	}
}

// activeStore picks the adapter for this call. Auth state is read fresh every
// time; a login or logout between two operations switches the store.
func (s *CartService) activeStore(c context.Context) (store.Store, string, bool, error) {
	if !s.session.Authenticated(c) {
		return s.guest, s.guestId, false, nil
	}
	identity, err := s.session.Identity(c)
	if err != nil {
		return nil, "", false, &errors.CartError{Op: "activeStore", Err: err}
	}
	return s.remote, identity, true, nil
}

// lockFor serializes mutating operations per identity: one in-flight write at
// a time, so rapid sequential mutations cannot interleave their
// reload-after-write steps.
func (s *CartService) lockFor(identity string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[identity] = lock
	}
	return lock
}

func (s *CartService) setCurrent(crt cart.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = crt
}

// Current returns a copy of the last loaded cart.
func (s *CartService) Current() cart.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Load reads the cart from the active store and rederives the totals. A
// remote cart's own stored totals are kept when they are consistent with its
// items; anything else is recomputed.
func (s *CartService) Load(c context.Context) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService Load")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService Load").
		Logger()

	st, identity, authenticated, err := s.activeStore(c)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	logger = logger.With().
		Str(log.KeyIdentity, identity).
		Bool("authenticated", authenticated).
		Logger()

	logger.Trace().Msg("loading cart")
	crt, err := st.Load(c, identity)
	if err != nil {
		err = fmt.Errorf("failed loading cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}

	if !authenticated || !crt.ConsistentTotals(s.tariff) {
		crt.Recalculate(s.tariff)
	}
	s.setCurrent(crt.Clone())
	logger.Trace().
		Int(log.KeyCartItems, len(crt.Items)).
		Int32(log.KeyTotalItems, crt.TotalItems).
		Msg("loaded cart")
	return crt, nil
}

// AddItem puts a product into the cart. A new entry floors at the product's
// minimum order quantity; adding an already present product increments its
// quantity by exactly what was requested instead of inserting a duplicate
// entry.
func (s *CartService) AddItem(
	c context.Context,
	item cart.LineItem,
	quantity int32,
) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService AddItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService AddItem").
		Str(log.KeyProductID, item.ProductId).
		Int32(log.KeyQuantity, quantity).
		Logger()

	if quantity <= 0 {
		err := &errors.CartError{Op: "addItem", Err: errors.ErrNonPositiveQuantity}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	if item.ProductId == "" {
		err := &errors.CartError{Op: "addItem", Err: errors.ErrMissingProductID}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}

	requested := quantity
	if quantity < item.MinimumOrderQuantity {
		quantity = item.MinimumOrderQuantity
	}
	item.Quantity = quantity
	if err := cart.ValidateLineItem(item); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}

	st, identity, _, err := s.activeStore(c)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	logger.Trace().Msg("adding cart item")
	crt, err := st.Load(c, identity)
	if err != nil {
		err = fmt.Errorf("failed loading cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	if i := crt.IndexOf(item.ProductId); i >= 0 {
		// The entry already satisfies the minimum, so the floor only
		// applies when creating one.
		crt.Items[i].Quantity += requested
	} else {
		crt.Items = append(crt.Items, item)
	}
	crt.Recalculate(s.tariff)

	err = st.Save(c, identity, crt)
	if err != nil {
		err = fmt.Errorf("failed saving cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	logger.Trace().Msg("added cart item")

	return s.Load(c)
}

// AddMultipleItems adds a batch atomically by intent: one invalid item fails
// the whole call before anything is persisted.
func (s *CartService) AddMultipleItems(
	c context.Context,
	items []cart.LineItem,
) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService AddMultipleItems")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService AddMultipleItems").
		Int(log.KeyCartItems, len(items)).
		Logger()

	normalized := make([]cart.LineItem, len(items))
	for i, item := range items {
		if item.ProductId == "" {
			err := &errors.CartError{Op: "addMultipleItems", Err: errors.ErrMissingProductID}
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return cart.Cart{}, err
		}
		if item.Quantity < item.MinimumOrderQuantity {
			item.Quantity = item.MinimumOrderQuantity
		}
		normalized[i] = item
	}
	if err := cart.ValidateItems(normalized); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}

	st, identity, _, err := s.activeStore(c)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	logger.Trace().Msg("adding cart items")
	crt, err := st.Load(c, identity)
	if err != nil {
		err = fmt.Errorf("failed loading cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	// Duplicates, within the batch or against the cart, combine quantities.
	for _, item := range normalized {
		if i := crt.IndexOf(item.ProductId); i >= 0 {
			crt.Items[i].Quantity += item.Quantity
			continue
		}
		crt.Items = append(crt.Items, item)
	}
	crt.Recalculate(s.tariff)

	err = st.Save(c, identity, crt)
	if err != nil {
		err = fmt.Errorf("failed saving cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	logger.Trace().Msg("added cart items")

	return s.Load(c)
}

// UpdateItem sets the quantity of an existing item. Deletion goes through
// RemoveItem; a non-positive quantity here is an error, and a quantity below
// the item's minimum order quantity is rejected rather than clamped.
func (s *CartService) UpdateItem(
	c context.Context,
	productId string,
	quantity int32,
) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService UpdateItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService UpdateItem").
		Str(log.KeyProductID, productId).
		Int32(log.KeyQuantity, quantity).
		Logger()

	if quantity <= 0 {
		err := &errors.CartError{Op: "updateItem", Err: errors.ErrNonPositiveQuantity}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}

	st, identity, _, err := s.activeStore(c)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	crt, err := st.Load(c, identity)
	if err != nil {
		err = fmt.Errorf("failed loading cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	item, ok := crt.FindItem(productId)
	if !ok {
		err = &errors.CartError{Op: "updateItem", Err: errors.ErrItemNotFound}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	if quantity < item.MinimumOrderQuantity {
		err = &errors.ValidationError{Fields: []string{"Quantity"}}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}

	logger.Trace().Msg("updating cart item")
	err = st.UpdateItemQuantity(c, identity, productId, quantity)
	if err != nil {
		err = fmt.Errorf("failed updating cart item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	logger.Trace().Msg("updated cart item")

	return s.Load(c)
}

// RemoveItem deletes the entry regardless of quantity. Removing an absent
// item is a no-op, not an error.
func (s *CartService) RemoveItem(c context.Context, productId string) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService RemoveItem").
		Str(log.KeyProductID, productId).
		Logger()

	st, identity, _, err := s.activeStore(c)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	crt, err := st.Load(c, identity)
	if err != nil {
		err = fmt.Errorf("failed loading cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	if crt.IndexOf(productId) < 0 {
		logger.Debug().Msg("cart item already absent")
		return s.Load(c)
	}

	logger.Trace().Msg("removing cart item")
	err = st.RemoveItem(c, identity, productId)
	if err != nil {
		err = fmt.Errorf("failed removing cart item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	logger.Trace().Msg("removed cart item")

	return s.Load(c)
}

// ClearCart empties the active store. This is the one mutation that updates
// the in-memory view directly instead of reloading.
func (s *CartService) ClearCart(c context.Context) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService ClearCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService ClearCart").
		Logger()

	st, identity, _, err := s.activeStore(c)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	logger.Trace().Msg("clearing cart")
	err = st.Clear(c, identity)
	if err != nil {
		err = fmt.Errorf("failed clearing cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	logger.Trace().Msg("cleared cart")

	empty := cart.Empty()
	s.setCurrent(empty)
	return empty.Clone(), nil
}

// BatchUpdate applies an ordered list of update and remove operations against
// the active store and reloads once at the end. This is how the draft overlay
// flushes its accumulated edits in a single round trip. The whole batch is
// validated before anything is applied.
func (s *CartService) BatchUpdate(c context.Context, operations []Operation) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService BatchUpdate")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService BatchUpdate").
		Int(log.KeyOperations, len(operations)).
		Logger()

	st, identity, _, err := s.activeStore(c)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	crt, err := st.Load(c, identity)
	if err != nil {
		err = fmt.Errorf("failed loading cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}

	for _, op := range operations {
		switch op.Type {
		case OpUpdate:
			if op.Quantity <= 0 {
				err = &errors.CartError{Op: "batchUpdate", Err: errors.ErrNonPositiveQuantity}
				otel.RecordError(err, span)
				logger.Error().Err(err).Msg(err.Error())
				return cart.Cart{}, err
			}
			item, ok := crt.FindItem(op.ProductId)
			if !ok {
				err = &errors.CartError{Op: "batchUpdate", Err: errors.ErrItemNotFound}
				otel.RecordError(err, span)
				logger.Error().Err(err).Msg(err.Error())
				return cart.Cart{}, err
			}
			if op.Quantity < item.MinimumOrderQuantity {
				err = &errors.ValidationError{Fields: []string{"Quantity"}}
				otel.RecordError(err, span)
				logger.Error().Err(err).Msg(err.Error())
				return cart.Cart{}, err
			}
		case OpRemove:
		default:
			err = &errors.CartError{
				Op:  "batchUpdate",
				Err: fmt.Errorf("unknown operation type %q", op.Type),
			}
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return cart.Cart{}, err
		}
	}

	logger.Trace().Msg("applying batch operations")
	for _, op := range operations {
		switch op.Type {
		case OpUpdate:
			err = st.UpdateItemQuantity(c, identity, op.ProductId, op.Quantity)
		case OpRemove:
			err = st.RemoveItem(c, identity, op.ProductId)
		}
		if err != nil {
			err = fmt.Errorf(
				"failed applying %s for productId=%s with error=%w",
				op.Type,
				op.ProductId,
				err,
			)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return cart.Cart{}, err
		}
	}
	logger.Trace().Msg("applied batch operations")

	return s.Load(c)
}

// SetRegion records the delivery region on the cart document and rederives
// the delivery charge.
func (s *CartService) SetRegion(c context.Context, region string) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService SetRegion")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService SetRegion").
		Str(log.KeyRegion, region).
		Logger()

	st, identity, _, err := s.activeStore(c)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	crt, err := st.Load(c, identity)
	if err != nil {
		err = fmt.Errorf("failed loading cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	crt.Region = region
	crt.Recalculate(s.tariff)

	logger.Trace().Msg("saving cart region")
	err = st.Save(c, identity, crt)
	if err != nil {
		err = fmt.Errorf("failed saving cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	logger.Trace().Msg("saved cart region")

	return s.Load(c)
}

// CompleteCheckout clears the cart once the order service has confirmed the
// order. Checkout itself belongs to the order flow, not this engine.
func (s *CartService) CompleteCheckout(c context.Context) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService CompleteCheckout")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService CompleteCheckout").
		Logger()

	if !s.session.Authenticated(c) {
		err := &errors.CartError{Op: "completeCheckout", Err: errors.ErrUnauthenticated}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	return s.ClearCart(c)
}
