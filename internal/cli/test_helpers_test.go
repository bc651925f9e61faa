package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/store"
	"github.com/roach88/kds/internal/testutil"
)

const testEpoch = 1758790000

// execute runs the root command with args and returns stdout and stderr.
// The dotenv lookup is disabled so a stray .env cannot leak in.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append(args, "--env-file", ""))
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// seed opens a store over dir, lets fn write to it and closes it again.
func seed(t *testing.T, dir string, fn func(s *store.Store)) {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		DataDir: dir,
		Clock:   testutil.NewFakeClock(testEpoch),
		IDs:     testutil.NewSequentialIDs("seed"),
	})
	require.NoError(t, err)
	fn(s)
	require.NoError(t, s.Close())
}

func seedOrder(t *testing.T, s *store.Store, sku string, qty int) domain.Order {
	t.Helper()
	o, err := s.CreateOrder(context.Background(), []domain.LineRequest{
		{Type: domain.LineMainSingle, MainSKU: sku, Qty: qty},
	})
	require.NoError(t, err)
	return o
}
