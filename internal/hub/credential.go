package hub

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// refreshSkew is how long before expiry a short-lived token is treated
// as already expired.
const refreshSkew = 10 * time.Second

// Credential is a bearer credential accepted by the hub. It is either a
// *ShortLivedToken from the authorization code flow or a LongLivedToken
// issued over the websocket. Bearer and NeedsRefresh switch over both.
type Credential interface {
	credential()
}

// ShortLivedToken is the access/refresh pair returned by the token
// endpoint. It is never persisted.
type ShortLivedToken struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
	Expiry       time.Time
}

// LongLivedToken is the durable bearer token stored in the config file.
type LongLivedToken string

func (*ShortLivedToken) credential() {}
func (LongLivedToken) credential()   {}

func newShortLivedToken(tok *oauth2.Token, refreshToken string) *ShortLivedToken {
	if tok.RefreshToken != "" {
		refreshToken = tok.RefreshToken
	}

	return &ShortLivedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    time.Duration(tok.ExpiresIn) * time.Second,
		Expiry:       tok.Expiry,
	}
}

// Bearer returns the value for the Authorization header.
func Bearer(c Credential) string {
	switch c := c.(type) {
	case *ShortLivedToken:
		return c.AccessToken
	case LongLivedToken:
		return string(c)
	default:
		panic(fmt.Sprintf("hub: unknown credential type %T", c))
	}
}

// NeedsRefresh reports whether c must be refreshed before use at now.
// Long-lived tokens never do. A short-lived token without an expiry is
// treated as valid.
func NeedsRefresh(c Credential, now time.Time) bool {
	switch c := c.(type) {
	case *ShortLivedToken:
		if c.Expiry.IsZero() {
			return false
		}

		return !now.Before(c.Expiry.Add(-refreshSkew))
	case LongLivedToken:
		return false
	default:
		panic(fmt.Sprintf("hub: unknown credential type %T", c))
	}
}
