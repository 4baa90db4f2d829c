package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Factory builds provider clients from a plaintext access token.
type Factory struct {
	timeout  time.Duration
	endpoint string
	base     *http.Client
}

type FactoryOption func(*Factory)

// WithEndpoint points both services at a different base URL.
func WithEndpoint(endpoint string) FactoryOption {
	return func(f *Factory) { f.endpoint = endpoint }
}

// WithBaseClient sets the client whose transport carries the bearer token.
func WithBaseClient(c *http.Client) FactoryOption {
	return func(f *Factory) { f.base = c }
}

// NewFactory returns a factory whose clients time out each call after timeout.
func NewFactory(timeout time.Duration, opts ...FactoryOption) *Factory {
	f := &Factory{timeout: timeout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) options(ctx context.Context, accessToken string) []option.ClientOption {
	if f.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.base)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	client.Timeout = f.timeout

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}
	return opts
}

func (f *Factory) Drive(ctx context.Context, accessToken string) (DriveAPI, error) {
	svc, err := drive.NewService(ctx, f.options(ctx, accessToken)...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DriveClient{svc: svc}, nil
}

func (f *Factory) Calendar(ctx context.Context, accessToken string) (CalendarAPI, error) {
	svc, err := calendar.NewService(ctx, f.options(ctx, accessToken)...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &CalendarClient{svc: svc}, nil
}
