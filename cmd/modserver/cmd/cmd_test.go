package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/modserver"
	"github.com/GoCodeAlone/modserver/builtin/collection"
	"github.com/GoCodeAlone/modserver/internal/testutil"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range testutil.TrackedEnv {
		t.Setenv(k, "")
	}
}

func optionsCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("env-file", "", "")
	addOptionFlags(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, PrintVersion()+"\n", out)
	assert.Contains(t, out, "modserver vdev")
}

func TestLoadOptions_Defaults(t *testing.T) {
	clearEnv(t)
	opts, err := LoadOptions(optionsCommand(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)
}

func TestLoadOptions_Layering(t *testing.T) {
	clearEnv(t)
	app := testutil.NewAppDir(t)
	path := app.WriteFile("modserver.yaml", `
dir: /srv/app
env: staging
refresh: "*/5 * * * *"
middlewareTimeout: 3s
http:
  addr: ":9000"
  adminKey: from-file
database:
  dsn: file:from-file.db
`)
	t.Setenv("MODSERVER_ENV", "production")
	t.Setenv("MODSERVER_ADDR", ":9100")

	opts, err := LoadOptions(optionsCommand(t, "--config", path, "--addr", ":9200", "--watch"))
	require.NoError(t, err)

	assert.Equal(t, "/srv/app", opts.Dir)
	assert.Equal(t, "production", opts.Env)
	assert.Equal(t, "*/5 * * * *", opts.Refresh)
	assert.Equal(t, 3*time.Second, opts.MiddlewareTimeout)
	assert.Equal(t, ":9200", opts.HTTP.Addr)
	assert.Equal(t, "from-file", opts.HTTP.AdminKey)
	assert.Equal(t, "file:from-file.db", opts.Database.DSN)
	assert.True(t, opts.Watch)
}

func TestLoadOptions_JSONFile(t *testing.T) {
	clearEnv(t)
	app := testutil.NewAppDir(t)
	path := app.WriteJSON("modserver.json", map[string]any{
		"dir":         "/srv/json",
		"concurrency": 4,
	})

	opts, err := LoadOptions(optionsCommand(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "/srv/json", opts.Dir)
	assert.Equal(t, 4, opts.Concurrency)
}

func TestLoadOptions_EnvFile(t *testing.T) {
	clearEnv(t)
	app := testutil.NewAppDir(t)
	path := app.WriteFile("server.env", "MODSERVER_DIR=/srv/dotenv\nMODSERVER_ENV=staging\n")
	t.Setenv("MODSERVER_ENV", "production")

	opts, err := LoadOptions(optionsCommand(t, "--env-file", path))
	require.NoError(t, err)
	assert.Equal(t, "/srv/dotenv", opts.Dir)
	assert.Equal(t, "production", opts.Env)
}

func TestLoadOptions_UnsupportedFile(t *testing.T) {
	clearEnv(t)
	app := testutil.NewAppDir(t)
	path := app.WriteFile("modserver.ini", "dir=/x")
	_, err := LoadOptions(optionsCommand(t, "--config", path))
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = newLogger(&buf, "loud", "text")
	require.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	require.Error(t, err)
}

func testDSN(t *testing.T) string {
	return "file:" + filepath.Join(t.TempDir(), "test.db")
}

func TestCheckCommand(t *testing.T) {
	clearEnv(t)
	app := testutil.NewAppDir(t)
	app.Resource("todos", collection.TypeID, map[string]any{
		"properties": map[string]any{"title": "string"},
	})

	out, err := execute(t, "check", "--dir", app.Path, "--db", testDSN(t), "--log-level", "error")
	require.NoError(t, err)

	var summary Summary
	require.NoError(t, yaml.Unmarshal([]byte(out), &summary), out)
	assert.Equal(t, app.Path, summary.Dir)
	assert.Equal(t, []string{"collection", "core"}, summary.Modules)
	assert.Equal(t, []string{"collection"}, summary.ResourceTypes)
	assert.Equal(t, []ResourceSummary{{Name: "todos", Type: "collection"}}, summary.Resources)
	assert.Equal(t, []string{"'powered-by' from the 'core' module"}, summary.Middleware["request"])
}

func TestCheckCommand_InvalidResource(t *testing.T) {
	clearEnv(t)
	app := testutil.NewAppDir(t)
	app.Resource("ghost", "no-such-type", nil)

	_, err := execute(t, "check", "--dir", app.Path, "--db", testDSN(t), "--log-level", "error")
	require.ErrorIs(t, err, modserver.ErrResourceConfig)
}

func TestServe(t *testing.T) {
	clearEnv(t)
	app := testutil.NewAppDir(t)
	app.Resource("todos", collection.TypeID, nil)

	opts := DefaultOptions()
	opts.Dir = app.Path
	opts.Database.DSN = testDSN(t)
	opts.HTTP.Addr = "127.0.0.1:0"
	opts.HTTP.ShutdownTimeout = time.Second
	opts.Refresh = "@every 1h"
	opts.Watch = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, opts, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServe_InitialLoadFails(t *testing.T) {
	clearEnv(t)
	app := testutil.NewAppDir(t)
	app.WriteFile("app.json", "{not json")

	opts := DefaultOptions()
	opts.Dir = app.Path
	opts.Database.DSN = testDSN(t)

	err := serve(context.Background(), opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.ErrorIs(t, err, modserver.ErrSettingsParse)
}
