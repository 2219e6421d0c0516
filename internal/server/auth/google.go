package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/yerakh/cloudvault/internal/common"
)

const tokenInfoEndpoint = "https://oauth2.googleapis.com/tokeninfo"

// ExternalIdentity is the verified result of an external identity assertion:
// an email the provider vouches for plus a stable provider-subject id.
type ExternalIdentity struct {
	Email      string
	FirstName  string
	LastName   string
	ProviderID string
}

// GoogleProvider verifies Google identity assertions. It supports two entry
// points: VerifyIDToken for ID tokens obtained by a browser sign-in widget,
// and Exchange for the server-side authorization-code flow.
type GoogleProvider struct {
	config       *oauth2.Config
	httpClient   *http.Client
	tokenInfoURL string
}

// NewGoogleProvider builds a provider for the given OAuth client. httpClient
// may be nil, in which case http.DefaultClient is used.
func NewGoogleProvider(clientID, clientSecret, callbackURL string, httpClient *http.Client) *GoogleProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		httpClient:   httpClient,
		tokenInfoURL: tokenInfoEndpoint,
	}
}

// AuthURL returns the Google authorization URL for the code flow. The state
// parameter must be verified by the caller on callback.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type tokenInfoResponse struct {
	Aud        string `json:"aud"`
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	Verified   string `json:"email_verified"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// VerifyIDToken validates a Google ID token against the tokeninfo endpoint
// and returns the asserted identity. Any failure, including an audience
// mismatch, yields common.ErrorUnauthorized.
func (p *GoogleProvider) VerifyIDToken(ctx context.Context, idToken string) (*ExternalIdentity, error) {
	u := p.tokenInfoURL + "?id_token=" + url.QueryEscape(idToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building tokeninfo request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling tokeninfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, common.ErrorUnauthorized
	}

	var info tokenInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding tokeninfo response: %w", err)
	}

	if info.Aud != p.config.ClientID || info.Sub == "" || info.Email == "" {
		return nil, common.ErrorUnauthorized
	}

	return &ExternalIdentity{
		Email:      info.Email,
		FirstName:  info.GivenName,
		LastName:   info.FamilyName,
		ProviderID: info.Sub,
	}, nil
}

type userInfoResponse struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Exchange completes the authorization-code flow: trades code for an access
// token and fetches the user's profile from the userinfo endpoint.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*ExternalIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging oauth code: %w", err)
	}

	client := p.config.Client(ctx, token)
	resp, err := client.Get("https://openidconnect.googleapis.com/v1/userinfo")
	if err != nil {
		return nil, fmt.Errorf("calling userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding userinfo response: %w", err)
	}

	if info.Sub == "" || info.Email == "" {
		return nil, common.ErrorUnauthorized
	}

	return &ExternalIdentity{
		Email:      info.Email,
		FirstName:  info.GivenName,
		LastName:   info.FamilyName,
		ProviderID: info.Sub,
	}, nil
}
