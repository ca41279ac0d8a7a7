package tilegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("AC1032-dwg"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	d, err := c.Generate(context.Background(), Request{
		JobID:    "j1",
		TileID:   "tile-1",
		TileName: "Lobby wall",
		Members:  []Member{{ProductID: "p1", FossPID: "F1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("AC1032-dwg"), d.Data)
	assert.Equal(t, "Lobby_wall.dwg", d.FileName)
	assert.Equal(t, "tile-1", got.TileID)
	assert.Len(t, got.Members, 1)
}

func TestGenerate_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"unknown product F9"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Generate(context.Background(), Request{TileID: "t", Members: []Member{{ProductID: "p"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown product F9")
}

func TestGenerate_Validation(t *testing.T) {
	_, err := NewClient("", 0).Generate(context.Background(), Request{Members: []Member{{}}})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient("http://localhost:1", 0).Generate(context.Background(), Request{})
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "tile-9.dwg", FileName("", "tile-9"))
	assert.Equal(t, "Ceiling_A.dwg", FileName("Ceiling A/", "x"))
}
