package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Agentica/internal/agentruntime"
	xerrors "Agentica/internal/errors"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL + "/"})
}

func TestCreateAgentWrapsCharacterAndExtractsID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agents", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CharacterJSON agentruntime.Character `json:"characterJson"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Alpha", body.CharacterJSON.Name)
		_, _ = w.Write([]byte(`{"success":true,"data":{"agentId":"agent-123"}}`))
	})

	id, err := newTestClient(t, mux).CreateAgent(context.Background(), agentruntime.BuildCharacter("Alpha", "Trades ETH momentum", nil))
	require.NoError(t, err)
	assert.Equal(t, "agent-123", id)
}

func TestCreateAgentWithoutIDFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agents", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	_, err := newTestClient(t, mux).CreateAgent(context.Background(), agentruntime.BuildCharacter("Alpha", "desc", nil))
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, agentruntime.CodeRuntimeError))
}

func TestErrorStatusCarriesUpstreamDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agents/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent is already running", http.StatusConflict)
	})

	err := newTestClient(t, mux).StartAgent(context.Background(), "agent-1")
	require.Error(t, err)
	assert.Equal(t, xerrors.CategoryUpstreamUnavailable, xerrors.CategoryOf(err))
	assert.Contains(t, err.Error(), "409 - agent is already running")
}

func TestMissingBaseURLFailsFast(t *testing.T) {
	client := NewClient(Config{Getenv: func(string) string { return "" }})

	err := client.DeleteAgent(context.Background(), "agent-1")
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, xerrors.CodeUpstreamUnavailable))
	assert.Contains(t, err.Error(), "ELIZA_SERVER_URL")

	_, err = client.ListRooms(context.Background())
	assert.True(t, xerrors.IsCode(err, xerrors.CodeUpstreamUnavailable))
}

func TestBaseURLIsReadFromEnvironmentPerCall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agents/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agent-9", r.PathValue("id"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	current := ""
	client := NewClient(Config{BaseURLEnv: "RUNTIME_URL", Getenv: func(key string) string {
		assert.Equal(t, "RUNTIME_URL", key)
		return current
	}})

	require.Error(t, client.StopAgent(context.Background(), "agent-9"))
	current = server.URL
	require.NoError(t, client.StopAgent(context.Background(), "agent-9"))
}

func TestCreateRoomPostsAgentIDs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		var spec agentruntime.RoomSpec
		require.NoError(t, json.NewDecoder(r.Body).Decode(&spec))
		assert.Equal(t, []string{"a1", "a2"}, spec.AgentIDs)
		_, _ = w.Write([]byte(`{"roomId":"room-42"}`))
	})

	id, err := newTestClient(t, mux).CreateRoom(context.Background(), agentruntime.RoomSpec{Name: "Alpha", AgentIDs: []string{"a1", "a2"}})
	require.NoError(t, err)
	assert.Equal(t, "room-42", id)
}

func TestListRoomsAcceptsResponseShapes(t *testing.T) {
	for name, payload := range map[string]string{
		"rooms": `{"rooms":[{"id":"r1","name":"One","agentIds":["a1"],"createdAt":"2025-01-01"}]}`,
		"data":  `{"data":[{"id":"r1","name":"One","agent_ids":["a1"],"created_at":"2025-01-01"}]}`,
		"array": `[{"id":"r1","name":"One","agentIds":["a1"],"created_at":"2025-01-01"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/rooms", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(payload))
			})

			rooms, err := newTestClient(t, mux).ListRooms(context.Background())
			require.NoError(t, err)
			require.Len(t, rooms, 1)
			assert.Equal(t, "r1", rooms[0].ID)
			assert.Equal(t, []string{"a1"}, rooms[0].AgentIDs)
			assert.Equal(t, "2025-01-01", rooms[0].CreatedAt)
		})
	}
}

func TestListRoomsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	rooms, err := newTestClient(t, mux).ListRooms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSubmitMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/messaging/submit", func(w http.ResponseWriter, r *http.Request) {
		var msg agentruntime.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "room-1", msg.ChannelID)
		assert.Equal(t, agentruntime.ZeroServerID, msg.ServerID)
		_, _ = w.Write([]byte(`{"data":{"messageId":"m-1"},"createdAt":"2025-02-02T00:00:00Z"}`))
	})

	receipt, err := newTestClient(t, mux).SubmitMessage(context.Background(), agentruntime.NewMessage("room-1", "hello", nil))
	require.NoError(t, err)
	assert.Equal(t, "m-1", receipt.ID)
	assert.Equal(t, "2025-02-02T00:00:00Z", receipt.CreatedAt)
}
