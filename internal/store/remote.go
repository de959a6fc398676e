package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hanifauzan/greenmart/internal/auth"
	"github.com/hanifauzan/greenmart/internal/cart"
	"github.com/hanifauzan/greenmart/internal/errors"
	"github.com/hanifauzan/greenmart/internal/log"
	"github.com/hanifauzan/greenmart/internal/otel"
)

type cartEnvelope struct {
	Cart cart.Cart `json:"cart"`
}

type upsertCartBody struct {
	Identity       string          `json:"identity"`
	Items          []cart.LineItem `json:"items"`
	Region         string          `json:"region,omitempty"`
	TotalItems     int32           `json:"totalItems"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
}

type updateQuantityBody struct {
	Quantity int32 `json:"quantity"`
}

// RemoteStore talks to the cart REST API. It is the authoritative store for a
// logged-in account; every call carries the session bearer token and a
// request id for correlation.
type RemoteStore struct {
	baseUrl string
	client  *http.Client
	session auth.Session
}

func NewRemoteStore(baseUrl string, timeout time.Duration, session auth.Session) *RemoteStore {
	return &RemoteStore{
		baseUrl: baseUrl,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		session: session,
	}
}

func (s *RemoteStore) cartUrl(identity string) string {
	return s.baseUrl + "/carts/" + url.PathEscape(identity)
}

func (s *RemoteStore) itemUrl(identity string, productId string) string {
	return s.cartUrl(identity) + "/items/" + url.PathEscape(productId)
}

// retryable reports whether a failed status is worth retrying by the caller.
func retryable(statusCode int) bool {
	return statusCode >= http.StatusInternalServerError ||
		statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests
}

func (s *RemoteStore) do(
	c context.Context,
	op string,
	method string,
	requestUrl string,
	body interface{},
) (*http.Response, error) {
	c, span := otel.Tracer.Start(c, "RemoteStore do")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RemoteStore do").
		Str(log.KeyStore, "remote").
		Str("method", method).
		Str("url", requestUrl).
		Logger()

	token, err := s.session.Token(c)
	if err != nil {
		err = fmt.Errorf("failed getting session token with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, &errors.CartError{Op: op, Err: errors.ErrUnauthenticated}
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			err = fmt.Errorf("failed marshaling request body with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return nil, &errors.PersistenceError{Op: op, Err: err}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(c, method, requestUrl, reader)
	if err != nil {
		err = fmt.Errorf("failed creating request with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, &errors.PersistenceError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(log.KeyRequestID, uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		// Transport failures, timeouts included, are retryable by the caller.
		err = fmt.Errorf("failed sending request with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, &errors.PersistenceError{Op: op, Retryable: true, Err: err}
	}
	return resp, nil
}

func (s *RemoteStore) Load(c context.Context, identity string) (cart.Cart, error) {
	c, span := otel.Tracer.Start(c, "RemoteStore Load")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RemoteStore Load").
		Str(log.KeyIdentity, identity).
		Logger()

	logger.Trace().Msg("loading remote cart")
	resp, err := s.do(c, "load", http.MethodGet, s.cartUrl(identity), nil)
	if err != nil {
		return cart.Cart{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// No server-side cart yet for this account.
		logger.Debug().Msg("remote cart not found, returning empty cart")
		return cart.Empty(), nil
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("cart api returned status=%d", resp.StatusCode)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, &errors.PersistenceError{
			Op:         "load",
			StatusCode: resp.StatusCode,
			Retryable:  retryable(resp.StatusCode),
			Err:        err,
		}
	}

	envelope := cartEnvelope{}
	err = json.NewDecoder(resp.Body).Decode(&envelope)
	if err != nil {
		err = fmt.Errorf("failed decoding cart response with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return cart.Cart{}, &errors.PersistenceError{Op: "load", Err: err}
	}
	if envelope.Cart.Items == nil {
		envelope.Cart.Items = []cart.LineItem{}
	}
	logger.Trace().Int(log.KeyCartItems, len(envelope.Cart.Items)).Msg("loaded remote cart")
	return envelope.Cart, nil
}

func (s *RemoteStore) Save(c context.Context, identity string, crt cart.Cart) error {
	c, span := otel.Tracer.Start(c, "RemoteStore Save")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RemoteStore Save").
		Str(log.KeyIdentity, identity).
		Int(log.KeyCartItems, len(crt.Items)).
		Logger()

	body := upsertCartBody{
		Identity:       identity,
		Items:          crt.Items,
		Region:         crt.Region,
		TotalItems:     crt.TotalItems,
		Subtotal:       crt.Subtotal,
		DeliveryCharge: crt.DeliveryCharge,
		TotalAmount:    crt.TotalAmount,
	}
	logger.Trace().Msg("saving remote cart")
	resp, err := s.do(c, "save", http.MethodPost, s.baseUrl+"/carts", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err = fmt.Errorf("cart api returned status=%d", resp.StatusCode)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{
			Op:         "save",
			StatusCode: resp.StatusCode,
			Retryable:  retryable(resp.StatusCode),
			Err:        err,
		}
	}
	logger.Trace().Msg("saved remote cart")
	return nil
}

func (s *RemoteStore) UpdateItemQuantity(
	c context.Context,
	identity string,
	productId string,
	quantity int32,
) error {
	c, span := otel.Tracer.Start(c, "RemoteStore UpdateItemQuantity")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RemoteStore UpdateItemQuantity").
		Str(log.KeyIdentity, identity).
		Str(log.KeyProductID, productId).
		Int32(log.KeyQuantity, quantity).
		Logger()

	logger.Trace().Msg("updating remote cart item quantity")
	resp, err := s.do(
		c,
		"updateItemQuantity",
		http.MethodPut,
		s.itemUrl(identity, productId),
		updateQuantityBody{Quantity: quantity},
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		err = fmt.Errorf("productId=%s with error=%w", productId, errors.ErrItemNotFound)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{
			Op:         "updateItemQuantity",
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("cart api returned status=%d", resp.StatusCode)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{
			Op:         "updateItemQuantity",
			StatusCode: resp.StatusCode,
			Retryable:  retryable(resp.StatusCode),
			Err:        err,
		}
	}
	logger.Trace().Msg("updated remote cart item quantity")
	return nil
}

func (s *RemoteStore) RemoveItem(c context.Context, identity string, productId string) error {
	c, span := otel.Tracer.Start(c, "RemoteStore RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RemoteStore RemoveItem").
		Str(log.KeyIdentity, identity).
		Str(log.KeyProductID, productId).
		Logger()

	logger.Trace().Msg("removing remote cart item")
	resp, err := s.do(c, "removeItem", http.MethodDelete, s.itemUrl(identity, productId), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Removing an already absent item is a no-op.
	if resp.StatusCode == http.StatusNotFound {
		logger.Debug().Msg("remote cart item already absent")
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		err = fmt.Errorf("cart api returned status=%d", resp.StatusCode)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{
			Op:         "removeItem",
			StatusCode: resp.StatusCode,
			Retryable:  retryable(resp.StatusCode),
			Err:        err,
		}
	}
	logger.Trace().Msg("removed remote cart item")
	return nil
}

func (s *RemoteStore) Clear(c context.Context, identity string) error {
	c, span := otel.Tracer.Start(c, "RemoteStore Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RemoteStore Clear").
		Str(log.KeyIdentity, identity).
		Logger()

	logger.Trace().Msg("clearing remote cart")
	resp, err := s.do(c, "clear", http.MethodDelete, s.cartUrl(identity), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		logger.Debug().Msg("remote cart already absent")
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		err = fmt.Errorf("cart api returned status=%d", resp.StatusCode)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return &errors.PersistenceError{
			Op:         "clear",
			StatusCode: resp.StatusCode,
			Retryable:  retryable(resp.StatusCode),
			Err:        err,
		}
	}
	logger.Trace().Msg("cleared remote cart")
	return nil
}
