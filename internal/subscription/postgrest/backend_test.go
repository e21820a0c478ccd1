package postgrest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/bissquit/sjtu-digest/internal/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "anon-test-key"

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend, err := NewBackend(Config{URL: server.URL + "/", Key: testKey})
	require.NoError(t, err)
	return backend
}

func TestNewBackend_Defaults(t *testing.T) {
	backend, err := NewBackend(Config{URL: "https://example.supabase.co/", Key: testKey})
	require.NoError(t, err)

	assert.Equal(t, "https://example.supabase.co", backend.config.URL)
	assert.Equal(t, defaultTimeout, backend.config.Timeout)
	assert.Equal(t, defaultTimeout, backend.httpClient.Timeout)
}

func TestNewBackend_CustomTimeout(t *testing.T) {
	backend, err := NewBackend(Config{URL: "https://example.supabase.co", Key: testKey, Timeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, backend.httpClient.Timeout)
}

func TestNewBackend_Placeholders(t *testing.T) {
	_, err := NewBackend(Config{URL: subscription.PlaceholderURL, Key: subscription.PlaceholderKey})
	assert.ErrorIs(t, err, subscription.ErrNotConfigured)
}

func TestBackend_UpsertSubscription_Request(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/rpc/manage_subscription", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, testKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@sjtu.edu.cn", body["_email"])
		assert.Equal(t, "小明", body["_name"])
		assert.Equal(t, []any{"计算机学院", "教务处"}, body["_subs"])

		w.WriteHeader(http.StatusNoContent)
	})

	err := backend.UpsertSubscription(context.Background(), domain.Submission{
		Email:         "a@sjtu.edu.cn",
		Name:          "小明",
		Subscriptions: []string{"计算机学院", "教务处"},
	})
	assert.NoError(t, err)
}

func TestBackend_UpsertSubscription_NilSubsSentAsArray(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{}, body["_subs"])
		w.WriteHeader(http.StatusOK)
	})

	err := backend.UpsertSubscription(context.Background(), domain.Submission{Email: "a@sjtu.edu.cn"})
	assert.NoError(t, err)
}

func TestBackend_UpsertSubscription_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantCode    string
		wantDetails string
	}{
		{
			name:        "postgrest error body",
			status:      http.StatusBadRequest,
			body:        `{"code":"P0001","message":"邮箱格式不正确","details":null,"hint":null}`,
			wantMessage: "邮箱格式不正确",
			wantCode:    "P0001",
		},
		{
			name:        "missing function",
			status:      http.StatusNotFound,
			body:        `{"code":"PGRST202","message":"Could not find the function","details":"Searched for manage_subscription","hint":"Perhaps you meant"}`,
			wantMessage: "Could not find the function",
			wantCode:    "PGRST202",
			wantDetails: "Searched for manage_subscription",
		},
		{
			name:        "non json body",
			status:      http.StatusBadGateway,
			body:        "upstream unavailable",
			wantMessage: "",
			wantDetails: "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := backend.UpsertSubscription(context.Background(), domain.Submission{Email: "a@sjtu.edu.cn"})
			require.Error(t, err)
			require.True(t, IsRPCError(err))

			rpcErr := err.(*RPCError)
			assert.Equal(t, tt.status, rpcErr.Status)
			assert.Equal(t, tt.wantMessage, rpcErr.Message)
			assert.Equal(t, tt.wantCode, rpcErr.Code)
			assert.Equal(t, tt.wantDetails, rpcErr.Details)
		})
	}
}

func TestRPCError_Error(t *testing.T) {
	assert.Equal(t, "boom", (&RPCError{Status: 400, Message: "boom"}).Error())
	assert.Equal(t, "rpc error 400 (P0001)", (&RPCError{Status: 400, Code: "P0001"}).Error())
	assert.Equal(t, "", (&RPCError{Status: 502}).Error())
}

func TestBackend_SubscriberCount(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "number", body: "42", want: 42},
		{name: "null", body: "null", want: 0},
		{name: "empty", body: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/rest/v1/rpc/get_subscriber_count", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})

			count, err := backend.SubscriberCount(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, count)
		})
	}
}

func TestBackend_SubscriberCount_InvalidPayload(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`"many"`))
	})

	_, err := backend.SubscriberCount(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode subscriber count")
}

func TestBackend_SubscriberCount_ThroughClient(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := subscription.NewClient(backend, subscription.Options{})
	assert.Equal(t, 0, client.FetchSubscriberCount(context.Background()))
}

func TestBackend_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	backend, err := NewBackend(Config{URL: url, Key: testKey, Timeout: time.Second})
	require.NoError(t, err)

	err = backend.UpsertSubscription(context.Background(), domain.Submission{Email: "a@sjtu.edu.cn"})
	require.Error(t, err)
	assert.False(t, IsRPCError(err))
	assert.Contains(t, err.Error(), "call manage_subscription")
}
