package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"

	"github.com/dgellow/pkce-front/internal/ioutil"
	"golang.org/x/oauth2"
)

// ErrMissingIdentifier is returned when a profile carries neither "id" nor "sub"
var ErrMissingIdentifier = errors.New("profile has no id")

// Profile is the user record returned by the profile endpoint.
// Fields other than id, name and email are kept in Extra.
type Profile struct {
	ID    string
	Name  string
	Email string
	Extra map[string]any
}

// UnmarshalJSON accepts "id" or "sub" as the identifier, as string or number.
func (p *Profile) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("profile must be a JSON object")
	}

	*p = Profile{}
	// "id" wins; "sub" is only consumed when it is the identifier
	for _, key := range []string{"id", "sub"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		id, err := identifierString(raw)
		if err != nil {
			return fmt.Errorf("profile %s: %w", key, err)
		}
		if id == "" {
			continue
		}
		p.ID = id
		delete(fields, key)
		break
	}
	delete(fields, "id")

	if name, ok := fields["name"].(string); ok {
		p.Name = name
		delete(fields, "name")
	}
	if email, ok := fields["email"].(string); ok {
		p.Email = email
		delete(fields, "email")
	}
	if len(fields) > 0 {
		p.Extra = fields
	}
	return nil
}

// MarshalJSON flattens Extra next to the fixed fields.
func (p Profile) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+3)
	maps.Copy(out, p.Extra)
	out["id"] = p.ID
	if p.Name != "" {
		out["name"] = p.Name
	}
	if p.Email != "" {
		out["email"] = p.Email
	}
	return json.Marshal(out)
}

// DisplayName returns the best human-readable label for the profile
func (p *Profile) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	default:
		return p.ID
	}
}

func identifierString(v any) (string, error) {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id), nil
	case json.Number:
		return id.String(), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported identifier type %T", v)
	}
}

// StatusError is returned when the profile endpoint answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("profile endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// ProfileClient fetches the user profile from the backend with a bearer token.
type ProfileClient struct {
	profileURL string
	httpClient *http.Client
}

// NewProfileClient creates a client for profileURL (GET, Authorization: Bearer).
func NewProfileClient(profileURL string, httpClient *http.Client) *ProfileClient {
	if httpClient == nil {
		httpClient = DefaultHTTPClient
	}
	return &ProfileClient{
		profileURL: profileURL,
		httpClient: httpClient,
	}
}

// FetchProfile requests the profile for accessToken.
func (c *ProfileClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token is empty")
	}

	// oauth2.NewClient drops the base client's Timeout, so bound the call here
	if c.httpClient.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	defer ioutil.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       ioutil.ReadLimited(resp.Body, 1024),
		}
	}

	var profile Profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if profile.ID == "" {
		return nil, ErrMissingIdentifier
	}
	return &profile, nil
}
