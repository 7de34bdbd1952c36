package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSink_Delivers(t *testing.T) {
	var (
		gotBody    []byte
		gotHeaders http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, "", quietLogger())
	evt := New(TypeRolePermissionsAssigned, "t1", "op", map[string]interface{}{"role_id": "r1"})
	sink.Publish(context.Background(), evt)

	var received Event
	require.NoError(t, json.Unmarshal(gotBody, &received))
	assert.Equal(t, evt.ID, received.ID)
	assert.Equal(t, evt.Type, received.Type)
	assert.Equal(t, "t1", received.TenantID)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, string(TypeRolePermissionsAssigned), gotHeaders.Get("X-Authcore-Event"))
	assert.Equal(t, evt.ID, gotHeaders.Get("X-Authcore-Event-ID"))
	assert.NotEmpty(t, gotHeaders.Get("X-Authcore-Delivery"))
	assert.Empty(t, gotHeaders.Get("X-Authcore-Signature"))
}

func TestWebhookSink_SignsWhenSecretSet(t *testing.T) {
	var (
		gotBody []byte
		gotSig  string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body
		gotSig = r.Header.Get("X-Authcore-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, "s3cret", quietLogger())
	sink.Publish(context.Background(), New(TypeRoleMoved, "t1", "op", nil))

	require.NotEmpty(t, gotSig)
	assert.True(t, VerifySignature(gotBody, gotSig, "s3cret"))
	assert.False(t, VerifySignature(gotBody, gotSig, "wrong-secret"))
	assert.False(t, VerifySignature([]byte("tampered"), gotSig, "s3cret"))
}

func TestWebhookSink_SurvivesEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, "", quietLogger())
	assert.NotPanics(t, func() {
		sink.Publish(context.Background(), New(TypeRoleCreated, "t1", "op", nil))
	})

	// Unreachable endpoint is logged and dropped, never surfaced.
	dead := NewWebhookSink("http://127.0.0.1:1/unreachable", "", quietLogger())
	assert.NotPanics(t, func() {
		dead.Publish(context.Background(), New(TypeRoleCreated, "t1", "op", nil))
	})
}

func TestVerifySignature_Format(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	sig := generateSignature(payload, "key")

	assert.Contains(t, sig, "sha256=")
	assert.True(t, VerifySignature(payload, sig, "key"))
}
