package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pilab-dev/shadow-oauth/domain"
	"golang.org/x/oauth2"
)

// Profile is the external account as reported by the provider.
type Profile struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	Username   string
	PictureURL string
	Raw        map[string]any
}

// ProfileFetcher loads the external profile with an authorized client.
type ProfileFetcher func(ctx context.Context, client *http.Client) (*Profile, error)

// SubjectResolver finds the local subject of an external profile. It
// returns nil when there is none.
type SubjectResolver func(ctx context.Context, profile *Profile) (*domain.Subject, error)

// LookupProfile builds a UserLookupFunc that fetches the profile and
// resolves it to a local subject.
func LookupProfile(fetch ProfileFetcher, resolve SubjectResolver) UserLookupFunc {
	return func(ctx context.Context, client *http.Client, _ *oauth2.Token) (*domain.Subject, error) {
		profile, err := fetch(ctx, client)
		if err != nil {
			return nil, err
		}

		return resolve(ctx, profile)
	}
}

// getJSON decodes the JSON body of a GET into out and returns the raw
// object when out is a struct.
func getJSON(ctx context.Context, client *http.Client, endpoint, provider string, out any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get %s: %w", provider, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response body: %w", provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s returned status %d, body: %s", provider, endpoint, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal response: %w", provider, err)
	}

	return body, nil
}

func rawObject(body []byte) map[string]any {
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	return raw
}

func splitName(fullName string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(fullName), " ")
	return first, last
}
