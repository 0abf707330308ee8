package hub

import (
	"context"
	"ctchen222/presence-relay/internal/config"
	"ctchen222/presence-relay/internal/player/mocks"
	"ctchen222/presence-relay/internal/presence"
	"ctchen222/presence-relay/pkg/proto"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// expectFrames records every frame sent to a mock connection.
func expectFrames(m *mocks.MockConnection, times int) *[]proto.Envelope {
	var frames []proto.Envelope
	m.EXPECT().Send(gomock.Any()).DoAndReturn(func(data []byte) error {
		var env proto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}
		frames = append(frames, env)
		return nil
	}).Times(times)
	return &frames
}

func TestTradeRequest_DeliveredOnlyToReceiver(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newTestHub(t, config.BroadcastTick)
	ctx := context.Background()

	conns := admitReady(t, h, "city", "alice", "carol")

	// The receiver sits in another area; trades are not area-scoped
	bob := mocks.NewMockConnection(ctrl)
	bob.EXPECT().ID().Return("bob-conn").AnyTimes()
	frames := expectFrames(bob, 2) // current-players on admission, then the trade
	require.NoError(t, h.Admit(ctx, "bob", "forest", bob))

	h.HandleMessage(ctx, "alice", conns[0], frame(t, proto.TypeTradeRequest, map[string]any{
		"tradeId":      "t-1",
		"initiatorId":  "alice",
		"receiverId":   "bob",
		"items":        []string{"sword"},
		"fromPlayerId": "mallory",
	}))

	require.Len(t, *frames, 2)
	got := (*frames)[1]
	assert.Equal(t, proto.TypeTradeRequest, got.Type)
	assert.JSONEq(t, `{
		"tradeId": "t-1",
		"initiatorId": "alice",
		"receiverId": "bob",
		"items": ["sword"],
		"fromPlayerId": "alice"
	}`, string(got.Payload))

	assert.Empty(t, conns[0].all())
	assert.Empty(t, conns[1].all())
}

func TestTradeUpdate_ResolvesCounterparty(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{
			name:    "explicit target",
			payload: map[string]any{"tradeId": "t-1", "status": "accepted", "targetPlayerId": "bob"},
			want:    "bob",
		},
		{
			name: "sender is the receiver",
			payload: map[string]any{"tradeId": "t-1", "status": "accepted", "tradeDetails": map[string]any{
				"initiatorId": "bob",
				"receiverId":  "alice",
			}},
			want: "bob",
		},
		{
			name: "sender is the initiator",
			payload: map[string]any{"tradeId": "t-1", "status": "cancelled", "tradeDetails": map[string]any{
				"initiatorId": "alice",
				"receiverId":  "carol",
			}},
			want: "carol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t, config.BroadcastTick)
			conns := admitReady(t, h, "city", "alice", "bob", "carol")
			byID := map[string]*recordingConn{"alice": conns[0], "bob": conns[1], "carol": conns[2]}

			h.HandleMessage(context.Background(), "alice", conns[0], frame(t, proto.TypeTradeUpdate, tt.payload))

			for id, conn := range byID {
				got := conn.ofType(proto.TypeTradeUpdate)
				if id != tt.want {
					assert.Empty(t, got, id)
					continue
				}
				require.Len(t, got, 1)
				var payload map[string]any
				require.NoError(t, json.Unmarshal(got[0].Payload, &payload))
				assert.Equal(t, "alice", payload["fromPlayerId"])
				assert.Equal(t, tt.payload["status"], payload["status"])
			}
		})
	}
}

func TestTradeUpdate_UnresolvableIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newTestHub(t, config.BroadcastTick)
	ctx := context.Background()

	conns := admitReady(t, h, "city", "alice")

	// A bystander must receive nothing beyond its admission snapshot
	bystander := mocks.NewMockConnection(ctrl)
	bystander.EXPECT().ID().Return("dave-conn").AnyTimes()
	expectFrames(bystander, 1)
	require.NoError(t, h.Admit(ctx, "dave", "forest", bystander))

	h.HandleMessage(ctx, "alice", conns[0], frame(t, proto.TypeTradeUpdate, map[string]any{
		"tradeId": "t-9",
		"status":  "accepted",
		"tradeDetails": map[string]any{
			"initiatorId": "x",
			"receiverId":  "y",
		},
	}))
	h.HandleMessage(ctx, "alice", conns[0], frame(t, proto.TypeTradeUpdate, map[string]any{
		"tradeId":        "t-9",
		"status":         "accepted",
		"targetPlayerId": "nobody",
	}))

	assert.Empty(t, conns[0].all())
}

func newDeferredState() *presence.State {
	return presence.NewState(presence.Options{DefaultArea: "city", DeferredHandshake: true})
}

func TestChat_WithoutAreaIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewHub(newDeferredState(), nil, nil, Options{Mode: config.BroadcastTick})
	ctx := context.Background()

	// No area, so nothing is ever sent on this connection
	lost := mocks.NewMockConnection(ctrl)
	lost.EXPECT().ID().Return("lost-conn").AnyTimes()
	require.NoError(t, h.Admit(ctx, "lost", "", lost))

	h.HandleMessage(ctx, "lost", lost, frame(t, proto.TypeChatMessage, map[string]any{"message": "anyone?"}))
	assert.True(t, h.state.Exists("lost"))
}
