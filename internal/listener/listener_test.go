package listener

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/store/postgres"
)

func TestDecode(t *testing.T) {
	in := model.EventRecord{ID: "e1", ServerURL: "http://a", Game: "Reversi", Kind: model.LastPlayerLeft,
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	payload, err := json.Marshal(in)
	require.NoError(t, err)

	got, err := Decode(string(payload))
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = Decode(`{"serverurl":"x"}`)
	assert.Error(t, err)
	_, err = Decode(`not json`)
	assert.Error(t, err)
}

type collector struct {
	mu     sync.Mutex
	events []model.EventRecord
}

func (c *collector) Publish(e model.EventRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestListenerReceivesCommittedEvents(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := postgres.Open(ctx, url, postgres.Options{})
	require.NoError(t, err)
	defer st.Close()

	col := &collector{}
	go Start(ctx, url, col, slog.New(slog.NewTextHandler(io.Discard, nil)))
	time.Sleep(500 * time.Millisecond)

	err = st.UpdateServer(ctx, "http://listener-test", func(*model.ServerState) (*model.ServerState, *model.EventRecord, error) {
		now := time.Now().UTC()
		return &model.ServerState{ServerURL: "http://listener-test", CreatedAt: now, UpdatedAt: now},
			&model.EventRecord{ID: "listener-" + now.Format(time.RFC3339Nano), ServerURL: "http://listener-test", Kind: model.ServerStarted, CreatedAt: now}, nil
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return col.len() >= 1 }, 5*time.Second, 50*time.Millisecond)
}
