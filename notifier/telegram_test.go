package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func telegramStub(t *testing.T, handler http.HandlerFunc) (*TelegramNotifier, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	n := NewTelegramNotifier("test-token", time.Second)
	n.baseURL = srv.URL
	return n, srv
}

func TestTelegramNotifierSend(t *testing.T) {
	var got map[string]interface{}
	n, _ := telegramStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	err := n.Send(context.Background(), 12345, "📅 Deadline today for receipt #RN-1")
	require.NoError(t, err)
	require.Equal(t, float64(12345), got["chat_id"])
	require.Equal(t, "📅 Deadline today for receipt #RN-1", got["text"])
}

func TestTelegramNotifierRejectedAnswer(t *testing.T) {
	n, _ := telegramStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	})

	err := n.Send(context.Background(), 1, "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "chat not found")
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	n, _ := telegramStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := n.Send(context.Background(), 1, "hi")
	require.Error(t, err)
}

func TestTelegramNotifierContextCancel(t *testing.T) {
	n, _ := telegramStub(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := n.Send(ctx, 1, "hi")
	require.Error(t, err)
}
