package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pilab-dev/shadow-oauth/cache"
	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/internal/server"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testConfig = `
oauth:
  secret_key: cli-secret
users:
  - username: alice
    password_hash: "$2a$04$abcdefghijklmnopqrstuu"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func newRuntime(t *testing.T) *server.Runtime {
	t.Helper()

	return newRuntimeWith(t, testConfig)
}

func newRuntimeWith(t *testing.T, content string) *server.Runtime {
	t.Helper()

	cfg, err := config.LoadConfig(writeConfig(t, content), filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)

	rt, err := server.Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	return rt
}

// run executes one oauthctl invocation against rt.
func run(t *testing.T, rt *server.Runtime, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCmd(&App{Runtime: rt, out: &out})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func TestScopeCommands(t *testing.T) {
	rt := newRuntime(t)

	_, err := run(t, rt, "scope", "create", "repo", "--description", "Repositories")
	require.NoError(t, err)
	_, err = run(t, rt, "scope", "create", "repo:read", "--parent", "repo")
	require.NoError(t, err)

	_, err = run(t, rt, "scope", "create", "admin:all", "--parent", "admin")
	assert.Error(t, err)

	out, err := run(t, rt, "scope", "list")
	require.NoError(t, err)

	var scopes []scopeView
	require.NoError(t, yaml.Unmarshal([]byte(out), &scopes))
	assert.Equal(t, []scopeView{
		{Name: "repo", Description: "Repositories"},
		{Name: "repo:read", Parent: "repo"},
	}, scopes)

	out, err = run(t, rt, "scope", "delete", "repo:read")
	require.NoError(t, err)
	assert.Equal(t, "scope repo:read deleted\n", out)
}

func TestClientLifecycle(t *testing.T) {
	rt := newRuntime(t)

	_, err := run(t, rt, "scope", "create", "read")
	require.NoError(t, err)

	out, err := run(t, rt, "client", "create",
		"--name", "Web App",
		"--domain", "https://app.example.com",
		"--scope", "read",
		"--redirect-uri", "https://app.example.com/cb",
		"-o", "json")
	require.NoError(t, err)

	var created clientView
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Secret)
	assert.Equal(t, "confidential", created.Type)
	assert.Equal(t, []string{"implicit", "authorization_code"}, created.Grants)

	out, err = run(t, rt, "client", "rotate-secret", created.ID, "-o", "json")
	require.NoError(t, err)

	var rotated map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &rotated))
	assert.NotEqual(t, created.Secret, rotated["client_secret"])

	c, err := rt.Engine.Clients.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, rt.Engine.Clients.VerifySecret(c, rotated["client_secret"]))
	assert.False(t, rt.Engine.Clients.VerifySecret(c, created.Secret))

	out, err = run(t, rt, "client", "list")
	require.NoError(t, err)

	var listed []clientView
	require.NoError(t, yaml.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Secret)

	out, err = run(t, rt, "client", "revoke", created.ID, "-o", "json")
	require.NoError(t, err)

	var revoked clientView
	require.NoError(t, json.Unmarshal([]byte(out), &revoked))
	assert.NotNil(t, revoked.RevokedAt)

	_, err = run(t, rt, "client", "delete", created.ID)
	require.NoError(t, err)

	_, err = run(t, rt, "client", "get", created.ID)
	assert.Error(t, err)
}

func TestClientCreate_Validation(t *testing.T) {
	rt := newRuntime(t)

	_, err := run(t, rt, "client", "create")
	assert.EqualError(t, err, "name is required via --name flag")

	_, err = run(t, rt, "client", "create", "--name", "x", "--profile", "desktop")
	assert.ErrorContains(t, err, "unknown client profile")

	_, err = run(t, rt, "client", "list", "-o", "toml")
	assert.EqualError(t, err, `unknown output format "toml"`)
}

func TestTokenPersonal(t *testing.T) {
	rt := newRuntime(t)

	_, err := run(t, rt, "scope", "create", "repo")
	require.NoError(t, err)

	out, err := run(t, rt, "client", "create",
		"--name", "CLI",
		"--domain", "https://cli.example.com",
		"--scope", "repo",
		"--redirect-uri", "https://cli.example.com/cb",
		"--internal",
		"--personal",
		"-o", "json")
	require.NoError(t, err)

	var personal clientView
	require.NoError(t, json.Unmarshal([]byte(out), &personal))
	require.True(t, personal.Personal)

	_, err = run(t, rt, "token", "personal", "--client-id", personal.ID)
	assert.EqualError(t, err, "--client-id and --subject are required")

	t.Setenv(clientSecretEnv, personal.Secret)
	out, err = run(t, rt, "token", "personal",
		"--client-id", personal.ID,
		"--subject", "alice",
		"--scope", "repo",
		"-o", "json")
	require.NoError(t, err)

	var token tokenView
	require.NoError(t, json.Unmarshal([]byte(out), &token))
	assert.Equal(t, "Bearer", token.TokenType)

	result := rt.Engine.Verifier.Verify(context.Background(), token.AccessToken, services.VerifyOptions{Scope: "repo"})
	require.True(t, result.OK(), result.Err)
	assert.Equal(t, "alice", result.Subject)
}

func TestRuntime_RefusesMemoryStorage(t *testing.T) {
	path := writeConfig(t, testConfig)

	var out bytes.Buffer
	root := NewRootCmd(&App{out: &out})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"scope", "list", "--config", path, "--env-file", filepath.Join(t.TempDir(), "none.env")})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend is memory")
	assert.Empty(t, out.String())
}

func TestCacheFlush(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	rt := newRuntimeWith(t, testConfig+`
cache:
  backend: redis
  redis_addr: "`+mr.Addr()+`"
`)

	require.NoError(t, rt.TokenCache.Set(ctx, &cache.TokenEntry{ID: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}))
	require.True(t, mr.Exists("soauth:token:jti-1"))

	out, err := run(t, rt, "cache", "flush")
	require.NoError(t, err)
	assert.Equal(t, "token cache flushed\n", out)
	assert.False(t, mr.Exists("soauth:token:jti-1"))
}

func TestCacheFlush_MemoryCache(t *testing.T) {
	rt := newRuntime(t)

	_, err := run(t, rt, "cache", "flush")
	assert.ErrorContains(t, err, "cache flush needs cache.backend redis")
}
