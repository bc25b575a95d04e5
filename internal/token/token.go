// Package token supplies bearer tokens for the document store. Token caching
// and refresh belong to the oauth2 library; callers just ask for a valid
// token each time they need one.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/config"
)

type Provider interface {
	GetValidToken(ctx context.Context) (string, error)
}

// ClientCredentials obtains tokens with the OAuth2 client-credentials grant.
type ClientCredentials struct {
	source oauth2.TokenSource
	logger *slog.Logger
}

func NewClientCredentials(cfg config.TokenConfig) (*ClientCredentials, error) {
	if cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, errors.New("token url and client id are required")
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	if cfg.Audience != "" {
		cc.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}
	return &ClientCredentials{
		source: cc.TokenSource(context.Background()),
		logger: slog.Default().With("component", "token-provider"),
	}, nil
}

func (p *ClientCredentials) GetValidToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := p.source.Token()
	if err != nil {
		p.logger.Error("failed to obtain access token", "error", err)
		return "", fmt.Errorf("obtaining access token: %w", err)
	}
	return tok.AccessToken, nil
}

// Static always returns the same token. Meant for local stores that do not
// check authorization, and for tests.
type Static string

func (s Static) GetValidToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(s), nil
}

// New picks the provider the configuration asks for.
func New(cfg config.TokenConfig) (Provider, error) {
	if cfg.StaticToken != "" {
		return Static(cfg.StaticToken), nil
	}
	return NewClientCredentials(cfg)
}
