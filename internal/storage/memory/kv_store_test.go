package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-validator/internal/storage"
	"github.com/JakeFAU/crawl-validator/internal/validation"
)

func TestKVStoreGetSet(t *testing.T) {
	t.Parallel()

	store := NewKVStore()
	ctx := context.Background()

	_, err := store.Get(ctx, validation.InputKey)
	require.ErrorIs(t, err, validation.ErrRecordNotFound)

	payload := []byte(`{"_id":"exec-1"}`)
	require.NoError(t, store.Set(ctx, validation.InputKey, payload))
	payload[0] = 'x'

	got, err := store.Get(ctx, validation.InputKey)
	require.NoError(t, err)
	require.JSONEq(t, `{"_id":"exec-1"}`, string(got))

	require.Error(t, store.Set(ctx, "", payload))
}

func TestNamespacePrefixesKeys(t *testing.T) {
	t.Parallel()

	inner := NewKVStore()
	ns, err := storage.NewNamespace(inner, storage.InvocationPrefix("inv-1"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ns.Set(ctx, validation.OutputKey, []byte(`{"errors":[]}`)))

	raw, err := inner.Get(ctx, "invocations/inv-1/OUTPUT")
	require.NoError(t, err)
	require.JSONEq(t, `{"errors":[]}`, string(raw))

	_, err = inner.Get(ctx, validation.OutputKey)
	require.ErrorIs(t, err, validation.ErrRecordNotFound)

	got, err := ns.Get(ctx, validation.OutputKey)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	_, err = storage.NewNamespace(inner, " / ")
	require.Error(t, err)
	_, err = storage.NewNamespace(nil, "x")
	require.Error(t, err)
}
