package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const testOrg = "acme"

// newTestApp wires an app around a fresh database with the LLM disabled.
func newTestApp(t *testing.T) (*app, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	v := viper.New()
	v.Set("database.path", db.Path)
	v.Set("llm.provider", config.ProviderNone)
	cfg, err := config.Load(v)
	require.NoError(t, err)

	return &app{
		cfg:      cfg,
		store:    db.Storage,
		taxonomy: db.Taxonomy,
		tables:   rules.DefaultTables(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, db
}

// prepare readies cmd for a direct run and returns its captured stdout.
func prepare(t *testing.T, cmd *cobra.Command, flags map[string]string) *bytes.Buffer {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetContext(context.Background())
	for k, v := range flags {
		require.NoError(t, cmd.Flags().Set(k, v))
	}
	return out
}
