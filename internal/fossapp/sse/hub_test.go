package sse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendToUser_OnlyTargetsUser(t *testing.T) {
	hub := NewHub(nil)
	a := NewClient("a1", "alice")
	b := NewClient("b1", "bob")
	hub.Register(a)
	hub.Register(b)

	n := hub.SendToUser("alice", Event{EventType: "ping", Data: "{}"})
	assert.Equal(t, 1, n)
	assert.Len(t, a.Events, 1)
	assert.Len(t, b.Events, 0)
}

func TestSendToUser_DropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil)
	c := NewClient("c1", "carol")
	hub.Register(c)

	for i := 0; i < ClientBuffer; i++ {
		require.Equal(t, 1, hub.SendToUser("carol", Event{EventType: "e"}))
	}
	assert.Equal(t, 0, hub.SendToUser("carol", Event{EventType: "overflow"}))
	assert.Len(t, c.Events, ClientBuffer)
}

func TestUnregister_ClosesChannel(t *testing.T) {
	hub := NewHub(nil)
	c := NewClient("c1", "carol")
	hub.Register(c)
	require.Equal(t, 1, hub.ClientCount())

	hub.Unregister("c1")
	assert.Equal(t, 0, hub.ClientCount())
	_, ok := <-c.Events
	assert.False(t, ok)

	// unknown ids are ignored
	hub.Unregister("c1")
}

func TestPublishTileProgress_Payload(t *testing.T) {
	hub := NewHub(nil)
	c := NewClient("c1", "dave")
	hub.Register(c)

	hub.PublishTileProgress("dave", TileProgress{JobID: "j1", TileID: "t1", Phase: "generating", Message: "calling generator"})

	ev := <-c.Events
	assert.Equal(t, "tile_progress", ev.EventType)
	var p TileProgress
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &p))
	assert.Equal(t, "j1", p.JobID)
	assert.Equal(t, "generating", p.Phase)
	assert.Empty(t, p.URN)
}

func TestPublishTileProgress_NoConnection(t *testing.T) {
	hub := NewHub(nil)
	// nothing registered; must not block or panic
	hub.PublishTileProgress("nobody", TileProgress{JobID: "j", Phase: "queued"})
}
