package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bhavikpatel576/timely/internal/config"
	"github.com/Bhavikpatel576/timely/internal/domain"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("TIMELY_STORE", "memory")
	t.Setenv("TIMELY_TIMEZONE", "UTC")
	t.Setenv("TIMELY_REDIS_URL", "")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestOpenMemorySeedsCatalog(t *testing.T) {
	ctx := context.Background()
	app, err := Open(ctx, memoryConfig(t), nil, Options{})
	require.NoError(t, err)
	defer app.Close()
	require.Nil(t, app.Pool)

	cats, err := app.Service.ListCategories(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cats)
	for _, c := range cats {
		require.NotEmpty(t, c.Color, c.Name)
	}

	res, err := app.Service.Resolve(ctx, nil, nil, ptr("github.com"))
	require.NoError(t, err)
	require.Equal(t, "work/coding", res.Category)
	require.Equal(t, "UTC", app.Service.Location().String())
}

func TestOpenSkipSeed(t *testing.T) {
	ctx := context.Background()
	app, err := Open(ctx, memoryConfig(t), nil, Options{SkipSeed: true})
	require.NoError(t, err)
	defer app.Close()

	rules, err := app.Service.ListRules(ctx)
	require.NoError(t, err)
	require.Empty(t, rules)

	res, err := app.Service.Resolve(ctx, ptr("Code"), nil, nil)
	require.NoError(t, err)
	require.Equal(t, domain.UncategorizedName, res.Category)
	require.Nil(t, res.CategoryID)
}

func TestOpenRejectsUnknownStore(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Store = "sqlite"
	_, err := Open(context.Background(), cfg, nil, Options{})
	require.ErrorContains(t, err, "unknown store")
}

func ptr(v string) *string { return &v }
