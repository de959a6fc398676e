// Package store holds the interchangeable cart persistence adapters: a guest
// store (file or redis backed) that survives without login, and the remote
// REST store that is authoritative once a user is logged in.
package store

import (
	"context"

	"github.com/hanifauzan/greenmart/internal/cart"
)

// Store is the contract every cart persistence adapter satisfies. Guest
// adapters may ignore identity; the remote adapter keys by account email.
type Store interface {
	// Load returns the cart for the identity. Guest adapters degrade to an
	// empty cart on missing or malformed data and never fail the read.
	Load(c context.Context, identity string) (cart.Cart, error)
	// Save replaces the whole cart document.
	Save(c context.Context, identity string, crt cart.Cart) error
	UpdateItemQuantity(c context.Context, identity string, productId string, quantity int32) error
	RemoveItem(c context.Context, identity string, productId string) error
	Clear(c context.Context, identity string) error
}
