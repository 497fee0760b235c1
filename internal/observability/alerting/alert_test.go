package alerting

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Agentica/internal/config"
	xerrors "Agentica/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{channel: ChannelLog}
	broken := &recordingNotifier{channel: ChannelSlack, err: stdErrors.New("boom")}

	err := NewFanout(ok, broken, nil).Notify(context.Background(), Event{Code: "X", Message: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack")
	assert.Len(t, ok.events, 1)
	assert.Len(t, broken.events, 1)
	assert.False(t, ok.events[0].OccurredAt.IsZero())
}

func TestWebhookNotifierFormatsDingTalkPayload(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := &WebhookNotifier{Kind: ChannelDingTalk, URL: server.URL}
	err := n.Notify(context.Background(), Event{
		Code:     "SAGA_ORPHANED",
		Severity: xerrors.SeverityCritical,
		Subject:  "room-1",
		Message:  "remote room orphaned",
		Metadata: map[string]string{"remote_room_id": "r-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, "text", got["msgtype"])
	content := got["text"].(map[string]any)["content"].(string)
	assert.Contains(t, content, "room-1")
	assert.Contains(t, content, "remote_room_id: r-9")
}

func TestWebhookNotifierReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := (&WebhookNotifier{Kind: ChannelSlack, URL: server.URL}).Notify(context.Background(), Event{})
	require.Error(t, err)
}

func TestFromConfigValidatesChannels(t *testing.T) {
	_, err := FromConfig(config.AlertingConfig{Webhooks: []config.WebhookConfig{{Channel: "email", URL: "x"}}})
	require.Error(t, err)

	d, err := FromConfig(config.AlertingConfig{Webhooks: []config.WebhookConfig{{Channel: "Slack", URL: "http://hook"}}})
	require.NoError(t, err)
	assert.Len(t, d.notifiers, 2)
}

func TestEventFromErrorCarriesMetadata(t *testing.T) {
	err := xerrors.New(xerrors.CodeStorageFailure, "db down", xerrors.WithMetadata("table", "rooms"))
	event := EventFromError(err, "room-7")
	assert.Equal(t, xerrors.CodeStorageFailure, event.Code)
	assert.Equal(t, "rooms", event.Metadata["table"])
	assert.Equal(t, xerrors.SeverityCritical, event.Severity)
}
