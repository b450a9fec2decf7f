package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscord_Send(t *testing.T) {
	var got DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := NewDiscord(server.URL)
	require.True(t, d.Enabled())
	require.NoError(t, d.SendSuccess(context.Background(), "3 products written", DiscordField{Name: "failed", Value: "0", Inline: true}))

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "3 products written", got.Embeds[0].Description)
	assert.Equal(t, colorGreen, got.Embeds[0].Color)
	assert.Equal(t, []DiscordField{{Name: "failed", Value: "0", Inline: true}}, got.Embeds[0].Fields)

	require.NoError(t, d.SendWarning(context.Background(), "1 job failed"))
	assert.Equal(t, colorOrange, got.Embeds[0].Color)
	require.NoError(t, d.SendError(context.Background(), "every job failed"))
	assert.Equal(t, colorRed, got.Embeds[0].Color)
}

func TestDiscord_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewDiscord(server.URL).SendError(context.Background(), "boom")
	assert.ErrorContains(t, err, "status code: 429")
}

func TestDiscord_Disabled(t *testing.T) {
	d := NewDiscord("")
	assert.False(t, d.Enabled())
	assert.NoError(t, d.SendSuccess(context.Background(), "ignored"))

	var nilDiscord *Discord
	assert.False(t, nilDiscord.Enabled())
	assert.NoError(t, nilDiscord.SendSuccess(context.Background(), "ignored"))
}
