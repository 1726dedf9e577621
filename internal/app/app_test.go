package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-validator/internal/config"
	memorypublisher "github.com/JakeFAU/crawl-validator/internal/publisher/memory"
	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// newDatasetPlatform serves one dataset with two items, one of them flagged.
func newDatasetPlatform(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/datasets/ds-1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"ds-1","itemCount":2}}`))
	})
	mux.HandleFunc("/v2/datasets/ds-1/items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Apify-Pagination-Total", "2")
		if r.URL.Query().Get("offset") != "0" {
			w.Header().Set("X-Apify-Pagination-Count", "0")
			_, _ = w.Write([]byte(`[]`))
			return
		}
		w.Header().Set("X-Apify-Pagination-Count", "2")
		_, _ = w.Write([]byte(`[{"url":"a","title":"x"},{"url":"b","error":"boom"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(platformURL string) config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		Platform: config.PlatformConfig{
			APIBaseURL:     platformURL,
			LegacyBaseURL:  platformURL,
			TimeoutSeconds: 5,
			Burst:          1,
		},
		Validation: config.ValidationConfig{PageLimit: 1000, DryRun: true},
		Storage:    config.StorageConfig{Backend: config.BackendMemory},
		PubSub:     config.PubSubConfig{TopicName: "validation-events"},
		Workers:    config.WorkersConfig{Count: 1, QueueDepth: 4},
		Logging:    config.LoggingConfig{Level: "info"},
	}
}

func TestBuildMemoryBackend(t *testing.T) {
	t.Parallel()

	a, err := Build(context.Background(), testConfig("https://api.example.com"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	assert.NotNil(t, a.Store())
	assert.NotNil(t, a.Invocations())
	assert.IsType(t, &memorypublisher.Publisher{}, a.Publisher())
}

func TestBuildConfigErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		mutate        func(*config.Config)
		expectedError string
	}{
		{
			name:          "unknown backend",
			mutate:        func(c *config.Config) { c.Storage.Backend = "s3" },
			expectedError: "unknown storage backend: s3",
		},
		{
			name:          "local backend without dir",
			mutate:        func(c *config.Config) { c.Storage.Backend = config.BackendLocal },
			expectedError: "local store init failed",
		},
		{
			name:          "platform backend without store id",
			mutate:        func(c *config.Config) { c.Storage.Backend = config.BackendPlatform },
			expectedError: "platform store init failed",
		},
		{
			name:          "postgres backend without dsn",
			mutate:        func(c *config.Config) { c.Storage.Backend = config.BackendPostgres },
			expectedError: "db.dsn is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig("https://api.example.com")
			tc.mutate(&cfg)
			_, err := Build(context.Background(), cfg, zap.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedError)
		})
	}
}

func TestRunOnceWritesOutput(t *testing.T) {
	t.Parallel()

	srv := newDatasetPlatform(t)
	a, err := Build(context.Background(), testConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"datasetId":"ds-1","data":{"minResults":5}}`), 0o600))

	outcome, err := a.RunOnce(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, []string{
		"Dataset contains only 2 items and minimum is 5",
		"b: Record contains error: boom",
	}, outcome.Errors)

	raw, err := a.Store().Get(context.Background(), validation.OutputKey)
	require.NoError(t, err)
	var output validation.Output
	require.NoError(t, json.Unmarshal(raw, &output))
	assert.Equal(t, outcome.Errors, output.Errors)
	assert.Equal(t, []string{"error", "title", "url"}, output.ExecutionAttrs)

	pub, ok := a.Publisher().(*memorypublisher.Publisher)
	require.True(t, ok)
	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].ErrorCount)
	assert.False(t, events[0].Passed)
}

func TestRunOnceMissingInput(t *testing.T) {
	t.Parallel()

	a, err := Build(context.Background(), testConfig("https://api.example.com"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	_, err = a.RunOnce(context.Background(), "")
	require.ErrorIs(t, err, validation.ErrInputMissing)
}

func TestServeRejectsPlatformBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://api.example.com")
	cfg.Storage.Backend = config.BackendPlatform
	cfg.Platform.KeyValueStoreID = "store-1"
	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	require.ErrorIs(t, a.Serve(context.Background()), ErrServeUnsupported)
}

func TestServiceProcessesWebhook(t *testing.T) {
	t.Parallel()

	srv := newDatasetPlatform(t)
	a, err := Build(context.Background(), testConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	svc, err := a.newService()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.dispatch.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		svc.queue.Close()
		<-done
	})

	api := httptest.NewServer(svc.api.Handler())
	t.Cleanup(api.Close)

	resp, err := http.Post(api.URL+"/v1/webhooks/finished", "application/json",
		bytes.NewBufferString(`{"datasetId":"ds-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	id := accepted["invocation_id"]
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		inv, err := a.Invocations().GetInvocation(context.Background(), id)
		return err == nil && inv.Status == validation.InvocationSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	inv, err := a.Invocations().GetInvocation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.ErrorCount)
}
