package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/service"
)

type recordedCall struct {
	err      error
	endpoint string
}

type fakeRecorder struct {
	calls []recordedCall
	hits  int
	mu    sync.Mutex
}

func (r *fakeRecorder) RecordClassification(endpoint string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{endpoint: endpoint, err: err})
}

func (r *fakeRecorder) RecordCacheHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func newTestClient(t *testing.T, handler http.Handler, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.ErrorIs(t, err, common.ErrMissingConfig)

	_, err = New(Config{BaseURL: "localhost:8000"})
	require.ErrorIs(t, err, common.ErrInvalidConfig)

	c, err := New(Config{BaseURL: "http://localhost:8000/"})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "http://localhost:8000", c.baseURL)
}

func TestProcessText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantModule model.ModuleCode
		wantSub    string
		wantAmount any
		wantError  bool
	}{
		{
			name:       "nested shape",
			body:       `{"module":{"moduleCode":"TRF"},"sub_module":{"submoduleCode":"TRF_IMMEDIATE"},"entities":{"amount":500},"raw_text":"send 500"}`,
			wantModule: model.ModuleTransfers,
			wantSub:    "TRF_IMMEDIATE",
			wantAmount: 500.0,
		},
		{
			name:       "flat shape",
			body:       `{"moduleCode":"ACC","submoduleCode":"ACC_BALANCE","entities":{},"raw_text":"balance"}`,
			wantModule: model.ModuleAccounts,
			wantSub:    "ACC_BALANCE",
		},
		{
			name:      "classification error",
			body:      `{"error":"Could not understand","raw_text":"blah"}`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got processTextBody
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, PathProcessText, r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				_, _ = w.Write([]byte(tt.body))
			}), Config{})

			resp, err := c.ProcessText(context.Background(), "42", "hello")
			require.NoError(t, err)
			assert.Equal(t, "42", got.UserID)
			assert.Equal(t, "hello", got.Text)

			assert.Equal(t, tt.wantError, resp.IsError())
			if tt.wantError {
				return
			}
			assert.Equal(t, tt.wantModule, resp.ModuleCode)
			assert.Equal(t, tt.wantSub, resp.SubmoduleCode)
			if tt.wantAmount != nil {
				assert.Equal(t, tt.wantAmount, resp.Entities["amount"])
			}
		})
	}
}

func TestProcessText_Cache(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	rec := &fakeRecorder{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"moduleCode":"ACC","submoduleCode":"ACC_LIST","entities":{}}`))
	}), Config{CacheTTL: time.Minute, Recorder: rec})
	ctx := context.Background()

	first, err := c.ProcessText(ctx, "1", "Show my accounts")
	require.NoError(t, err)
	first.Entities["mutated"] = true

	second, err := c.ProcessText(ctx, "1", "  show   MY accounts ")
	require.NoError(t, err)
	assert.NotContains(t, second.Entities, "mutated")
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, rec.hits)

	_, err = c.ProcessText(ctx, "2", "show my accounts")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "cache is per user")
}

func TestProcessText_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"warming up"}`))
			return
		}
		_, _ = w.Write([]byte(`{"moduleCode":"ACC","submoduleCode":"ACC_LIST","entities":{}}`))
	}), Config{})

	resp, err := c.ProcessText(context.Background(), "1", "accounts")
	require.NoError(t, err)
	assert.Equal(t, "ACC_LIST", resp.SubmoduleCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestProcessText_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	rec := &fakeRecorder{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"text field required"}`))
	}), Config{Recorder: rec})

	_, err := c.ProcessText(context.Background(), "1", "accounts")
	require.Error(t, err)

	var apiErr *common.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "text field required", apiErr.Message)
	assert.Equal(t, int32(1), hits.Load())
	require.Len(t, rec.calls, 1)
	assert.Equal(t, PathProcessText, rec.calls[0].endpoint)
	assert.Error(t, rec.calls[0].err)
}

func TestProcessSmartText(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, PathProcessSmartText, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusBadGateway)
	}), Config{})

	_, err := c.ProcessSmartText(context.Background(), service.SmartRequest{UserID: "7", Text: "hi", IsNewSession: true})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load(), "smart calls are not retried")
	assert.Equal(t, map[string]any{"user_id": "7", "text": "hi", "is_new_session": "true"}, got)
}

func TestCompleteAction(t *testing.T) {
	t.Parallel()

	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathCompleteAction, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"module":{"moduleCode":"ACC"},"sub_module":{"submoduleCode":"ACC_BALANCE"},"entities":{"accountNumber":"123"}}`))
	}), Config{})

	resp, err := c.CompleteAction(context.Background(), service.CompletionRequest{
		Module:     model.ModuleAccounts,
		SubModule:  "ACC_BALANCE",
		Parameters: model.Entities{"accountNumber": "123"},
	})
	require.NoError(t, err)
	assert.Equal(t, "123", resp.Entities["accountNumber"])
	assert.Equal(t, "ACC", got["module"])
	assert.Equal(t, "ACC_BALANCE", got["sub_module"])
	assert.Equal(t, map[string]any{"accountNumber": "123"}, got["parameters"])
}

func TestCall_Timeout(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}), Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.ProcessText(ctx, "1", "accounts")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCall_MalformedBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}), Config{})

	_, err := c.ProcessSmartText(context.Background(), service.SmartRequest{UserID: "1", Text: "x"})
	require.ErrorIs(t, err, common.ErrClassificationFailed)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	var unhealthy atomic.Bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathHealth, r.URL.Path)
		if unhealthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}), Config{})

	require.NoError(t, c.Health(context.Background()))
	unhealthy.Store(true)
	require.Error(t, c.Health(context.Background()))
}
