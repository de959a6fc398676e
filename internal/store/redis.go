package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hanifauzan/greenmart/internal/cart"
	"github.com/hanifauzan/greenmart/internal/errors"
	"github.com/hanifauzan/greenmart/internal/log"
	"github.com/hanifauzan/greenmart/internal/otel"
)

const (
	keyGuestCarts = "greenmart:carts:guest:%s"

	// Guest carts are abandoned often; let redis reap them.
	guestCartTTL = 30 * 24 * time.Hour
)

// RedisStore keeps guest carts in redis keyed by session id. It backs kiosk
// style deployments where several anonymous sessions share one host, and
// follows the same degrade-to-empty read contract as FileStore.
type RedisStore struct {
	client *redis.Client
	tariff cart.Tariff
}

func NewRedisStore(client *redis.Client, tariff cart.Tariff) *RedisStore {
	return &RedisStore{client: client, tariff: tariff}
}

func (s *RedisStore) key(identity string) string {
	return fmt.Sprintf(keyGuestCarts, identity)
}

func (s *RedisStore) Load(c context.Context, identity string) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "RedisStore Load")
	defer span.End()

	storeKey := s.key(identity)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RedisStore Load").
		Str(log.KeyStore, "redis").
		Str(log.KeyStoreKey, storeKey).
		Logger()

	raw, err := s.client.Get(c, storeKey).Result()
	if err != nil {
		if err == redis.Nil {
			logger.Debug().Msg("guest cart key missing, returning empty cart")
			return cart.Empty(), nil
		}
		err = fmt.Errorf("failed loading guest cart from redis with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, &errors.PersistenceError{Op: "load", Retryable: true, Err: err}
	}

	crt := cart.Empty()
	err = json.Unmarshal([]byte(raw), &crt)
	if err != nil {
		logger.Warn().Err(err).Msg("guest cart value is malformed, returning empty cart")
		return cart.Empty(), nil
	}
	if crt.Items == nil {
		crt.Items = []cart.LineItem{}
	}
	logger.Trace().Int(log.KeyCartItems, len(crt.Items)).Msg("loaded guest cart")
	return crt, nil
}

func (s *RedisStore) Save(c context.Context, identity string, crt cart.Cart) error {
	c, span := otel.Tracer.Start(c, "RedisStore Save")
	defer span.End()

	storeKey := s.key(identity)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RedisStore Save").
		Str(log.KeyStore, "redis").
		Str(log.KeyStoreKey, storeKey).
		Logger()

	raw, err := json.Marshal(crt)
	if err != nil {
		err = fmt.Errorf("failed marshaling guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{Op: "save", Err: err}
	}

	err = s.client.Set(c, storeKey, raw, guestCartTTL).Err()
	if err != nil {
		err = fmt.Errorf("failed saving guest cart to redis with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{Op: "save", Retryable: true, Err: err}
	}
	logger.Trace().Int(log.KeyCartItems, len(crt.Items)).Msg("saved guest cart")
	return nil
}

func (s *RedisStore) UpdateItemQuantity(
	c context.Context,
	identity string,
	productId string,
	quantity int32,
) error {
	c, span := otel.Tracer.Start(c, "RedisStore UpdateItemQuantity")
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

func (s *RedisStore) RemoveItem(c context.Context, identity string, productId string) error {
	c, span := otel.Tracer.Start(c, "RedisStore RemoveItem")
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

func (s *RedisStore) Clear(c context.Context, identity string) error {
	c, span := otel.Tracer.Start(c, "RedisStore Clear")
	defer span.End()

	storeKey := s.key(identity)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RedisStore Clear").
		Str(log.KeyStoreKey, storeKey).
		Logger()

	err := s.client.Del(c, storeKey).Err()
	if err != nil {
		err = fmt.Errorf("failed clearing guest cart from redis with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{Op: "clear", Retryable: true, Err: err}
	}
	logger.Trace().Msg("cleared guest cart")
	return nil
}
