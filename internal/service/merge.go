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

// mergeCarts reconciles the guest cart with the account cart. The result
// starts from the remote items; a guest item with the same productId adds its
// quantity to the existing entry, anything else is appended. fromLocal
// reports whether the guest side contributed, which decides whether the
// merged result has to be written back.
//
// Every item from both sides must validate; a single invalid item aborts the
// whole merge before any store is touched.
func mergeCarts(local cart.Cart, remote cart.Cart) (merged cart.Cart, fromLocal bool, err error) {
	if err = cart.ValidateItems(local.Items); err != nil {
		return cart.Cart{}, false, fmt.Errorf("invalid guest cart item with error=%w", err)
	}
	if err = cart.ValidateItems(remote.Items); err != nil {
		return cart.Cart{}, false, fmt.Errorf("invalid account cart item with error=%w", err)
	}

	if local.IsEmpty() {
		return remote, false, nil
	}

	merged = remote.Clone()
	if merged.Region == "" {
		merged.Region = local.Region
	}
	for _, item := range local.Items {
		if i := merged.IndexOf(item.ProductId); i >= 0 {
			// Quantities combine, they do not overwrite.
			merged.Items[i].Quantity += item.Quantity
			continue
		}
		merged.Items = append(merged.Items, item)
	}
	return merged, true, nil
}

// SyncOnLogin runs the guest/account cart merge for the login transition.
// It runs at most once per transition: repeated calls for the same identity
// just reload until OnLogout resets the guard.
func (s *CartService) SyncOnLogin(c context.Context) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService SyncOnLogin")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService SyncOnLogin").
		Logger()

	if !s.session.Authenticated(c) {
		err := &errors.CartError{Op: "syncOnLogin", Err: errors.ErrUnauthenticated}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	identity, err := s.session.Identity(c)
	if err != nil {
		err = &errors.CartError{Op: "syncOnLogin", Err: err}
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	logger = logger.With().Str(log.KeyIdentity, identity).Logger()

	lock := s.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	// Checked under the identity lock: concurrent logins must not both run
	// the merge body.
	s.mu.Lock()
	alreadyMerged := s.mergedFor == identity
	s.mu.Unlock()
	if alreadyMerged {
		logger.Debug().Msg("cart already merged this login transition")
		return s.Load(c)
	}

	logger = logger.With().Str(log.KeyProcess, "loading both carts").Logger()
	logger.Info().Msg("loading guest cart")
	local, err := s.guest.Load(c, s.guestId)
	if err != nil {
		err = fmt.Errorf("failed loading guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}
	logger.Info().Msg("loading account cart")
	remote, err := s.remote.Load(c, identity)
	if err != nil {
		err = fmt.Errorf("failed loading account cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, err
	}

	logger = logger.With().Str(log.KeyProcess, "merging carts").Logger()
	logger.Info().
		Int("guestItems", len(local.Items)).
		Int("accountItems", len(remote.Items)).
		Msg("merging carts")
	merged, fromLocal, err := mergeCarts(local, remote)
	if err != nil {
		mergeErr := &errors.CartMergeError{Err: err}
		otel.RecordError(mergeErr, span)
		logger.Error().Err(mergeErr).Msg(mergeErr.Error())
		return cart.Cart{}, mergeErr
	}
	logger.Info().Int(log.KeyCartItems, len(merged.Items)).Msg("merged carts")

	if fromLocal {
		merged.Recalculate(s.tariff)

		logger = logger.With().Str(log.KeyProcess, "persisting merged cart").Logger()
		logger.Info().Msg("saving merged cart to account store")
		err = s.remote.Save(c, identity, merged)
		if err != nil {
			err = fmt.Errorf("failed saving merged cart with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return cart.Cart{}, err
		}
		logger.Info().Msg("saved merged cart to account store")

		logger.Info().Msg("clearing guest cart")
		err = s.guest.Clear(c, s.guestId)
		if err != nil {
			err = fmt.Errorf("failed clearing guest cart with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return cart.Cart{}, err
		}
		logger.Info().Msg("cleared guest cart")
	}

	s.mu.Lock()
	s.mergedFor = identity
	s.mu.Unlock()

	return s.Load(c)
}

// OnLogout resets the merge guard so the next login transition merges again.
func (s *CartService) OnLogout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergedFor = ""
	s.current = cart.Empty()
}
