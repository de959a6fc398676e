package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/hanifauzan/greenmart/internal/cart"
	"github.com/hanifauzan/greenmart/internal/errors"
	"github.com/hanifauzan/greenmart/internal/log"
	"github.com/hanifauzan/greenmart/internal/otel"
)

// FileStore keeps the guest cart as one JSON document on disk. There is a
// single anonymous profile, so the identity argument is ignored.
type FileStore struct {
	path   string
	tariff cart.Tariff
}

func NewFileStore(path string, tariff cart.Tariff) *FileStore {
	return &FileStore{path: path, tariff: tariff}
}

func (s *FileStore) Load(c context.Context, _ string) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "FileStore Load")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "FileStore Load").
		Str(log.KeyStore, "file").
		Str(log.KeyStoreKey, s.path).
		Logger()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		logger.Debug().Err(err).Msg("guest cart file missing, returning empty cart")
		return cart.Empty(), nil
	}

	crt := cart.Empty()
	err = json.Unmarshal(raw, &crt)
	if err != nil {
		// A corrupt guest cart degrades to empty, never to a failed read.
		logger.Warn().Err(err).Msg("guest cart file is malformed, returning empty cart")
		return cart.Empty(), nil
	}
	if crt.Items == nil {
		crt.Items = []cart.LineItem{}
	}
	logger.Trace().Int(log.KeyCartItems, len(crt.Items)).Msg("loaded guest cart")
	return crt, nil
}

func (s *FileStore) Save(c context.Context, _ string, crt cart.Cart) error {
	c, span := otel.Tracer.Start(c, "FileStore Save")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "FileStore Save").
		Str(log.KeyStore, "file").
		Str(log.KeyStoreKey, s.path).
		Logger()

	raw, err := json.Marshal(crt)
	if err != nil {
		err = fmt.Errorf("failed marshaling guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{Op: "save", Err: err}
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err = os.MkdirAll(dir, 0o700); err != nil {
			err = fmt.Errorf("failed creating guest cart directory with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return &errors.PersistenceError{Op: "save", Err: err}
		}
	}

	tmp := s.path + ".tmp"
	err = os.WriteFile(tmp, raw, 0o600)
	if err == nil {
		err = os.Rename(tmp, s.path)
	}
	if err != nil {
		err = fmt.Errorf("failed writing guest cart file with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{Op: "save", Err: err}
	}
	logger.Trace().Int(log.KeyCartItems, len(crt.Items)).Msg("saved guest cart")
	return nil
}

func (s *FileStore) UpdateItemQuantity(
	c context.Context,
	identity string,
	productId string,
	quantity int32,
) error {
	c, span := otel.Tracer.Start(c, "FileStore UpdateItemQuantity")
	defer span.End()

	crt, err := s.Load(c, identity)
	if err != nil {
		return err
	}
	i := crt.IndexOf(productId)
	if i < 0 {
		return &errors.PersistenceError{Op: "updateItemQuantity", Err: errors.ErrItemNotFound}
	}
	crt.Items[i].Quantity = quantity
	crt.Recalculate(s.tariff)
	return s.Save(c, identity, crt)
}

func (s *FileStore) RemoveItem(c context.Context, identity string, productId string) error {
	c, span := otel.Tracer.Start(c, "FileStore RemoveItem")
	defer span.End()

	crt, err := s.Load(c, identity)
	if err != nil {
		return err
	}
	i := crt.IndexOf(productId)
	if i < 0 {
		return nil
	}
	crt.Items = append(crt.Items[:i], crt.Items[i+1:]...)
	crt.Recalculate(s.tariff)
	return s.Save(c, identity, crt)
}

func (s *FileStore) Clear(c context.Context, _ string) error {
	c, span := otel.Tracer.Start(c, "FileStore Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "FileStore Clear").
		Str(log.KeyStoreKey, s.path).
		Logger()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		err = fmt.Errorf("failed removing guest cart file with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{Op: "clear", Err: err}
	}
	logger.Trace().Msg("cleared guest cart")
	return nil
}
