package oauth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/jw6ventures/casefile/internal/store"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	stateName   = "casefile_oauth_state"
	stateMaxAge = 15 * time.Minute
)

// PendingConnection describes the connection a user asked for. It travels
// through the provider round trip inside the signed state parameter.
type PendingConnection struct {
	UserID              string               `json:"uid"`
	Kind                store.ConnectionKind `json:"kind"`
	FolderID            string               `json:"folder,omitempty"`
	CalendarID          string               `json:"calendar,omitempty"`
	TimeZone            string               `json:"tz,omitempty"`
	Direction           store.SyncDirection  `json:"dir,omitempty"`
	SyncIntervalSeconds int                  `json:"interval,omitempty"`
	Nonce               string               `json:"nonce"`
}

func (p *PendingConnection) validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	switch p.Kind {
	case store.KindDrive:
		if p.FolderID == "" {
			return fmt.Errorf("folder id is required for drive connections")
		}
	case store.KindCalendar:
		if p.CalendarID == "" {
			p.CalendarID = "primary"
		}
		switch p.Direction {
		case "":
			p.Direction = store.DirectionPull
		case store.DirectionPull, store.DirectionPush, store.DirectionBidirectional:
		default:
			return fmt.Errorf("unknown sync direction %q", p.Direction)
		}
	default:
		return fmt.Errorf("unknown connection kind %q", p.Kind)
	}
	if p.SyncIntervalSeconds < 0 {
		return fmt.Errorf("sync interval must not be negative")
	}
	return nil
}

// ConnectionCreator persists a freshly authorized connection.
type ConnectionCreator interface {
	Create(ctx context.Context, conn store.Connection) (*store.Connection, error)
}

// Connector runs the authorization code handshake that creates connections.
type Connector struct {
	conns      ConnectionCreator
	cipher     TokenCipher
	oauth      *oauth2.Config
	codec      *securecookie.SecureCookie
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
	logger     *zap.Logger
}

// NewConnector builds a connector. verifier may be nil, in which case the
// account email is left empty.
func NewConnector(conns ConnectionCreator, cipher TokenCipher, cfg *oauth2.Config, stateKey string, verifier *oidc.IDTokenVerifier, logger *zap.Logger) *Connector {
	hash := sha256.Sum256([]byte(stateKey))
	codec := securecookie.New(hash[:], hash[:])
	codec.MaxAge(int(stateMaxAge / time.Second))
	codec.SetSerializer(securecookie.JSONEncoder{})

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		conns:    conns,
		cipher:   cipher,
		oauth:    cfg,
		codec:    codec,
		verifier: verifier,
		logger:   logger,
	}
}

// SetHTTPClient overrides the client used for the code exchange.
func (c *Connector) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Connector) configFor(kind store.ConnectionKind) *oauth2.Config {
	cfg := *c.oauth
	cfg.Scopes = scopesFor(kind)
	return &cfg
}

// AuthURL returns the consent URL for p with offline access requested.
func (c *Connector) AuthURL(p PendingConnection) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	p.Nonce = uuid.NewString()
	state, err := c.codec.Encode(stateName, p)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return c.configFor(p.Kind).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// DecodeState verifies and decodes a state value produced by AuthURL.
func (c *Connector) DecodeState(state string) (*PendingConnection, error) {
	var p PendingConnection
	if err := c.codec.Decode(stateName, state, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return &p, nil
}

// Complete exchanges the authorization code and stores the new connection.
func (c *Connector) Complete(ctx context.Context, code, state string) (*store.Connection, error) {
	pending, err := c.DecodeState(state)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("authorization code is empty")
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	tok, err := c.configFor(pending.Kind).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, ErrTokenMissing
	}

	email, err := c.accountEmail(ctx, tok)
	if err != nil {
		return nil, err
	}

	accessEnc, err := c.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	conn := store.Connection{
		UserID:         pending.UserID,
		Kind:           pending.Kind,
		AccountEmail:   email,
		AccessTokenEnc: accessEnc,
		Direction:      store.DirectionPull,
		SyncInterval:   time.Duration(pending.SyncIntervalSeconds) * time.Second,
		Status:         store.StatusConnected,
	}
	if tok.RefreshToken != "" {
		enc, err := c.cipher.Encrypt(tok.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypt refresh token: %w", err)
		}
		conn.RefreshTokenEnc = &enc
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		conn.TokenExpiresAt = &exp
	}
	switch pending.Kind {
	case store.KindDrive:
		conn.FolderID = &pending.FolderID
	case store.KindCalendar:
		conn.CalendarID = &pending.CalendarID
		conn.Direction = pending.Direction
		if pending.TimeZone != "" {
			conn.TimeZone = &pending.TimeZone
		}
	}

	created, err := c.conns.Create(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	c.logger.Info("connection authorized",
		zap.String("connection_id", created.ID),
		zap.String("user_id", created.UserID),
		zap.String("kind", string(created.Kind)),
	)
	return created, nil
}

func (c *Connector) accountEmail(ctx context.Context, tok *oauth2.Token) (*string, error) {
	if c.verifier == nil {
		return nil, nil
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, nil
	}
	idToken, err := c.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}
	if claims.Email == "" {
		return nil, nil
	}
	return &claims.Email, nil
}
