package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/fujinet/game-alerts/internal/model"
)

func init() {
	color.NoColor = true
}

func TestFlags(t *testing.T) {
	assert.Equal(t, "- -", flags(model.Subscriber{}))
	assert.Equal(t, "sms,wa jl,ss,thr", flags(model.Subscriber{
		SMS: true, WhatsApp: true, NotifyJoinLeave: true, NotifyServerStart: true, Throttle: true,
	}))
	assert.Equal(t, "wa ss", flags(model.Subscriber{WhatsApp: true, NotifyServerStart: true}))
}

func TestPrintServers(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printServers(&buf, []model.ServerState{{
		ServerURL: "http://a", Game: "Reversi", Status: "online",
		CurPlayers: 1, MaxPlayers: 4, TotalUpdates: 7, UpdatedAt: now.Add(-90 * time.Minute),
	}}, now)

	out := buf.String()
	assert.Contains(t, out, "GAME")
	assert.Contains(t, out, "Reversi")
	assert.Contains(t, out, "1/4")
	assert.Contains(t, out, "1h30m0s")
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	printEvent(&buf, model.EventRecord{
		Kind: model.LastPlayerLeft, Game: "Reversi", ServerURL: "http://a", MaxPlayers: 4,
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, "2024-03-01 12:00:00  last_player_left   Reversi [0/4] http://a\n", buf.String())
}
