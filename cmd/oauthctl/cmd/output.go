package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	"gopkg.in/yaml.v3"
)

const (
	outputYAML = "yaml"
	outputJSON = "json"
)

type clientView struct {
	ID           string     `json:"client_id"              yaml:"client_id"`
	Secret       string     `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	Name         string     `json:"name"                   yaml:"name"`
	Domain       string     `json:"domain,omitempty"       yaml:"domain,omitempty"`
	Type         string     `json:"client_type"            yaml:"client_type"`
	Profile      string     `json:"client_profile"         yaml:"client_profile"`
	Grants       []string   `json:"grants"                 yaml:"grants"`
	Scope        string     `json:"scope"                  yaml:"scope"`
	RedirectURIs []string   `json:"redirect_uris,omitempty" yaml:"redirect_uris,omitempty"`
	Internal     bool       `json:"internal"               yaml:"internal"`
	Personal     bool       `json:"personal"               yaml:"personal"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"   yaml:"revoked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"             yaml:"created_at"`
}

func newClientView(c *domain.Client, secret string) clientView {
	grants := make([]string, 0, len(c.Grants))
	for _, g := range c.Grants {
		grants = append(grants, string(g))
	}

	return clientView{
		ID:           c.ID,
		Secret:       secret,
		Name:         c.Name,
		Domain:       c.Domain,
		Type:         string(c.Type),
		Profile:      string(c.Profile),
		Grants:       grants,
		Scope:        c.Scope,
		RedirectURIs: c.RedirectURIs,
		Internal:     c.Internal,
		Personal:     c.Personal,
		RevokedAt:    c.RevokedAt,
		CreatedAt:    c.CreatedAt,
	}
}

type scopeView struct {
	Name        string `json:"name"                  yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Parent      string `json:"parent,omitempty"      yaml:"parent,omitempty"`
}

func newScopeView(s *domain.Scope) scopeView {
	return scopeView{Name: s.Name, Description: s.Description, Parent: s.Parent}
}

type tokenView struct {
	AccessToken string    `json:"access_token"    yaml:"access_token"`
	TokenType   string    `json:"token_type"      yaml:"token_type"`
	Scope       string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"      yaml:"expires_at"`
}

func (app *App) print(w io.Writer, v any) error {
	if app.output == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	_, err = w.Write(out)

	return err
}
