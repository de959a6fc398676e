package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hanifauzan/greenmart/internal/cart"
	"github.com/hanifauzan/greenmart/internal/errors"
	"github.com/hanifauzan/greenmart/internal/log"
	"github.com/hanifauzan/greenmart/internal/otel"
)

// Draft is the optimistic working copy behind the interactive cart edit
// screen. Edits touch only the draft; nothing is persisted until Save flushes
// the accumulated difference as one batch. Only one Draft should be active
// per cart, two uncoordinated drafts would clobber each other's edits.
type Draft struct {
	svc       *CartService
	committed []cart.LineItem
	items     []cart.LineItem
}

// NewDraft starts a draft from the last loaded cart.
func (s *CartService) NewDraft() *Draft {
	committed := s.Current().Items
	return &Draft{
		svc:       s,
		committed: cart.CloneItems(committed),
		items:     cart.CloneItems(committed),
	}
}

func (d *Draft) Items() []cart.LineItem {
	return cart.CloneItems(d.items)
}

// HasChanges reports whether the draft differs from the committed items: a
// quantity difference or a presence difference on either side marks it dirty.
func (d *Draft) HasChanges() bool {
	if len(d.items) != len(d.committed) {
		return true
	}
	for _, committed := range d.committed {
		found := false
		for _, draft := range d.items {
			if draft.ProductId != committed.ProductId {
				continue
			}
			if draft.Quantity != committed.Quantity {
				return true
			}
			found = true
			break
		}
		if !found {
			return true
		}
	}
	return false
}

// SetQuantity updates the draft item's quantity only. Quantities below one
// and unknown products are ignored.
func (d *Draft) SetQuantity(productId string, quantity int32) {
	if quantity < 1 {
		return
	}
	for i := range d.items {
		if d.items[i].ProductId == productId {
			d.items[i].Quantity = quantity
			return
		}
	}
}

// RemoveItem drops the item from the draft list only. Callers confirm the
// destructive action before calling.
func (d *Draft) RemoveItem(productId string) {
	for i := range d.items {
		if d.items[i].ProductId == productId {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return
		}
	}
}

// operations diffs the draft against the committed items: committed items
// missing from the draft become removes, quantity differences become updates.
// Committed order is kept so a flush is deterministic.
func (d *Draft) operations() []Operation {
	operations := []Operation{}
	for _, committed := range d.committed {
		draft, ok := findItem(d.items, committed.ProductId)
		if !ok {
			operations = append(operations, Operation{
				Type:      OpRemove,
				ProductId: committed.ProductId,
			})
			continue
		}
		if draft.Quantity != committed.Quantity {
			operations = append(operations, Operation{
				Type:      OpUpdate,
				ProductId: committed.ProductId,
				Quantity:  draft.Quantity,
			})
		}
	}
	return operations
}

func findItem(items []cart.LineItem, productId string) (cart.LineItem, bool) {
	for _, item := range items {
		if item.ProductId == productId {
			return item, true
		}
	}
	return cart.LineItem{}, false
}

// Save flushes the draft as one batch through the synchronization service.
// On success the draft re-syncs from the freshly reloaded cart; on failure it
// is left untouched so the user can retry.
func (d *Draft) Save(c context.Context) error {
	c, span := otel.Tracer.Start(c, "Draft Save")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Draft Save").
		Logger()

	operations := d.operations()
	logger = logger.With().Int(log.KeyOperations, len(operations)).Logger()
	if len(operations) == 0 {
		logger.Debug().Msg("draft has no changes to save")
		return nil
	}

	logger.Info().Msg("flushing draft")
	crt, err := d.svc.BatchUpdate(c, operations)
	if err != nil {
		err = fmt.Errorf("failed flushing draft with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("flushed draft")

	d.committed = cart.CloneItems(crt.Items)
	d.items = cart.CloneItems(crt.Items)
	return nil
}

// Discard resets the draft to the committed items without a network call.
// Callers confirm the destructive action before calling.
func (d *Draft) Discard() {
	d.items = cart.CloneItems(d.committed)
}

// Resync reinitializes the draft after the committed cart reloaded outside
// the draft's control.
func (d *Draft) Resync(crt cart.Cart) {
	d.committed = cart.CloneItems(crt.Items)
	d.items = cart.CloneItems(crt.Items)
}

// CheckoutAllowed is the hard precondition the checkout entry point checks:
// unsaved edits block navigation to checkout.
func (d *Draft) CheckoutAllowed() error {
	if d.HasChanges() {
		return &errors.CartError{Op: "checkout", Err: errors.ErrDraftDirty}
	}
	return nil
}
