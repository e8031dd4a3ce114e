package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifySendsFormEncodedMessage(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/1/messages.json", r.URL.Path)
		require.NoError(t, r.ParseForm())
		got = map[string]string{
			"token":    r.PostFormValue("token"),
			"user":     r.PostFormValue("user"),
			"title":    r.PostFormValue("title"),
			"message":  r.PostFormValue("message"),
			"priority": r.PostFormValue("priority"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewPushover(PushoverConfig{Token: "app-token", UserKey: "user-key", BaseURL: server.URL})
	p.Notify(context.Background(), "Merge completed", "Merged 42 items")

	require.NotNil(t, got)
	assert.Equal(t, "app-token", got["token"])
	assert.Equal(t, "user-key", got["user"])
	assert.Equal(t, "Merge completed", got["title"])
	assert.Equal(t, "Merged 42 items", got["message"])
	assert.Equal(t, "1", got["priority"])
}

func TestNotifyWithoutCredentialsSkipsDelivery(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	p := NewPushover(PushoverConfig{BaseURL: server.URL})
	p.Notify(context.Background(), "ignored", "ignored")

	assert.False(t, called)
}

func TestNotifySwallowsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewPushover(PushoverConfig{Token: "t", UserKey: "u", BaseURL: server.URL})
	// Must not panic or propagate anything.
	p.Notify(context.Background(), "Merge failed", "boom")
}
