package canvas

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// OAuth exchanges Canvas authorization codes for durable user tokens.
type OAuth struct {
	Config oauth2.Config
	HTTP   *http.Client
}

func NewOAuth(baseURL, clientID, clientSecret, redirectURI string) *OAuth {
	base := strings.TrimRight(baseURL, "/")
	return &OAuth{
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/login/oauth2/auth",
				TokenURL:  base + "/login/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// AuthorizeURL is where a user with a missing or rejected token is sent.
func (o *OAuth) AuthorizeURL(state string) string {
	return o.Config.AuthCodeURL(state)
}

// Exchange trades code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	const op = "oauth exchange"
	if o.HTTP != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.HTTP)
	}
	tok, err := o.Config.Exchange(ctx, code)
	if err != nil {
		se := &ServiceError{Op: op, Kind: KindTransport, Err: err}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			se.Kind = KindStatus
			if rerr.Response != nil {
				se.StatusCode = rerr.Response.StatusCode
			}
			se.RemoteMessage = rerr.ErrorDescription
			if se.RemoteMessage == "" {
				se.RemoteMessage = rerr.ErrorCode
			}
		}
		return "", se
	}
	if tok.AccessToken == "" {
		return "", &ServiceError{Op: op, Kind: KindDecode, Err: errors.New("empty access token")}
	}
	return tok.AccessToken, nil
}
