package auth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Scopes requested from the user
var Scopes = []string{
	sheets.SpreadsheetsScope,
	sheets.DriveFileScope,
	oauth2api.OpenIDScope,
	oauth2api.UserinfoEmailScope,
}

// Google runs the Google OAuth web flow
type Google struct {
	config *oauth2.Config
	opts   []option.ClientOption
}

// NewGoogle creates a flow from a client id and secret
func NewGoogle(clientID, clientSecret, redirectURL string, opts ...option.ClientOption) *Google {
	return &Google{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
		},
		opts: opts,
	}
}

// NewGoogleFromFile creates a flow from a downloaded client secrets JSON file
func NewGoogleFromFile(path, redirectURL string, opts ...option.ClientOption) (*Google, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading client secrets: %w", err)
	}
	config, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secrets: %w", err)
	}
	if redirectURL != "" {
		config.RedirectURL = redirectURL
	}
	return &Google{config: config, opts: opts}, nil
}

// AuthCodeURL returns the consent page URL. Offline access gets a refresh
// token so spreadsheets can be written after the access token expires.
func (g *Google) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades the code for a token and looks up the user's email
func (g *Google) Exchange(ctx context.Context, code string) (string, *oauth2.Token, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("exchanging code: %w", err)
	}

	opts := append([]option.ClientOption{option.WithTokenSource(g.config.TokenSource(ctx, token))}, g.opts...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", nil, fmt.Errorf("creating userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("getting user info: %w", err)
	}
	if info.Email == "" {
		return "", nil, errors.New("user info has no email")
	}
	return info.Email, token, nil
}

// TokenSource returns a source that refreshes the stored token when it expires
func (g *Google) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return g.config.TokenSource(ctx, token)
}
