package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/hanifauzan/greenmart/internal/config"
	"github.com/hanifauzan/greenmart/internal/errors"
	"github.com/hanifauzan/greenmart/internal/log"
	"github.com/hanifauzan/greenmart/internal/otel"
)

// Session answers the auth questions the cart engine needs. Implementations
// must re-evaluate state on every call; login and logout can happen between
// any two operations.
type Session interface {
	Authenticated(c context.Context) bool
	// Identity returns the account email the remote cart is keyed by.
	Identity(c context.Context) (string, error)
	// Token returns the raw bearer token for remote calls.
	Token(c context.Context) (string, error)
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenSession reads a bearer token from a file on every call. A missing or
// invalid token file means the session is anonymous.
type TokenSession struct {
	cfg config.Session
}

func NewTokenSession(cfg config.Session) *TokenSession {
	return &TokenSession{cfg: cfg}
}

func (s *TokenSession) parse(c context.Context) (string, *sessionClaims, error) {
	c, span := otel.Tracer.Start(c, "TokenSession parse")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "TokenSession parse").
		Logger()

	raw, err := os.ReadFile(s.cfg.TokenPath)
	if err != nil {
		err = fmt.Errorf("failed reading token file with error=%w", err)
		logger.Trace().Err(err).Msg(err.Error())
		return "", nil, err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		err = fmt.Errorf("token file is empty with error=%w", errors.ErrUnauthenticated)
		logger.Trace().Err(err).Msg(err.Error())
		return "", nil, err
	}

	logger = logger.With().Str(log.KeyProcess, "parsing claims").Logger()
	logger.Trace().Msg("parsing claims")
	claims := sessionClaims{}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(s.cfg.Audience))
	}
	jwtToken, err := jwt.ParseWithClaims(token,
		&claims,
		func(t *jwt.Token) (interface{}, error) {
			return []byte(s.cfg.SecretKey), nil
		},
		options...,
	)
	if err != nil {
		err = fmt.Errorf("failed parsing claims with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return "", nil, err
	}
	if !jwtToken.Valid {
		err = fmt.Errorf("failed validating token with error=%w", errors.ErrUnauthenticated)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return "", nil, err
	}
	logger.Trace().Msg("parsed claims")

	return token, &claims, nil
}

func (s *TokenSession) Authenticated(c context.Context) bool {
	_, _, err := s.parse(c)
	return err == nil
}

func (s *TokenSession) Identity(c context.Context) (string, error) {
	_, claims, err := s.parse(c)
	if err != nil {
		return "", fmt.Errorf("failed getting identity with error=%w", err)
	}
	if claims.Email != "" {
		return claims.Email, nil
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf(
			"failed getting identity with error=%w",
			errors.ErrUnauthenticated,
		)
	}
	return subject, nil
}

func (s *TokenSession) Token(c context.Context) (string, error) {
	raw, _, err := s.parse(c)
	if err != nil {
		return "", fmt.Errorf("failed getting token with error=%w", err)
	}
	return raw, nil
}

// Login writes the bearer token for subsequent calls to pick up.
func (s *TokenSession) Login(c context.Context, token string) error {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "TokenSession Login").
		Logger()

	err := os.WriteFile(s.cfg.TokenPath, []byte(strings.TrimSpace(token)+"\n"), 0o600)
	if err != nil {
		err = fmt.Errorf("failed writing token file with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("stored session token")
	return nil
}

// Logout removes the stored token; removing an absent token is not an error.
func (s *TokenSession) Logout(c context.Context) error {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "TokenSession Logout").
		Logger()

	err := os.Remove(s.cfg.TokenPath)
	if err != nil && !os.IsNotExist(err) {
		err = fmt.Errorf("failed removing token file with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("removed session token")
	return nil
}
