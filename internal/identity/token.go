package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Session is the token pair handed to the dashboard.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SecretSource resolves the stored secret of a client.
type SecretSource interface {
	ClientSecret(ctx context.Context, clientID string) (string, error)
}

// TokenIssuer obtains tokens from the realm's OIDC token endpoint on behalf of
// a confidential client whose secret is looked up per call.
type TokenIssuer struct {
	TokenURL string
	ClientID string
	Secrets  SecretSource
	// HTTPClient is used for token requests when set.
	HTTPClient *http.Client
}

func NewTokenIssuer(realmURL, clientID string, secrets SecretSource) *TokenIssuer {
	return &TokenIssuer{
		TokenURL: realmURL + "/protocol/openid-connect/token",
		ClientID: clientID,
		Secrets:  secrets,
	}
}

func (t *TokenIssuer) config(ctx context.Context, style oauth2.AuthStyle) (*oauth2.Config, context.Context, error) {
	secret, err := t.Secrets.ClientSecret(ctx, t.ClientID)
	if err != nil {
		return nil, ctx, err
	}
	if t.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, t.HTTPClient)
	}
	return &oauth2.Config{
		ClientID:     t.ClientID,
		ClientSecret: secret,
		Endpoint:     oauth2.Endpoint{TokenURL: t.TokenURL, AuthStyle: style},
		Scopes:       []string{"openid"},
	}, ctx, nil
}

// PasswordSession runs the resource owner password grant.
func (t *TokenIssuer) PasswordSession(ctx context.Context, username, password string) (*Session, error) {
	cfg, ctx, err := t.config(ctx, oauth2.AuthStyleInParams)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return sessionFrom(tok)
}

// ExchangeCode runs the authorization code grant. redirectURI must equal the
// one the browser was sent to.
func (t *TokenIssuer) ExchangeCode(ctx context.Context, code, redirectURI string) (*Session, error) {
	cfg, ctx, err := t.config(ctx, oauth2.AuthStyleInHeader)
	if err != nil {
		return nil, err
	}
	cfg.RedirectURL = redirectURI
	tok, err := cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("scope", "openid"))
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	return sessionFrom(tok)
}

// Rejected reports whether err is the token endpoint refusing the grant, as
// opposed to the endpoint being unreachable.
func Rejected(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re)
}

func sessionFrom(tok *oauth2.Token) (*Session, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, errors.New("token response carried no access token")
	}
	return &Session{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}
