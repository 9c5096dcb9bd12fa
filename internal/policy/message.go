package policy

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fujinet/game-alerts/internal/model"
)

// Message renders the alert text for a notifiable event. It returns "" for
// kinds that never produce an alert.
func Message(kind model.EventKind, s model.ServerState) string {
	switch kind {
	case model.ServerStarted:
		return fmt.Sprintf("🌐 Server event- GameServer: [%s] running game [%s] has %d player(s) currently.",
			s.ServerURL, s.Game, s.CurPlayers)
	case model.PlayerJoined, model.PlayerLeft:
		return fmt.Sprintf("🎮 Player event- Game: [%s] now has %d player(s) currently online.",
			s.Game, s.CurPlayers)
	case model.LastPlayerLeft:
		return fmt.Sprintf("🌐 Server event- GameServer: [%s] the last player has left the game.", s.Game)
	default:
		return ""
	}
}

// DeleteMessage renders the chat note for a server removed from the lobby.
// The server URL is reduced to scheme, host and path; the game is taken from
// its "table" query parameter.
func DeleteMessage(serverURL string) string {
	base, table := splitServerURL(serverURL)
	return fmt.Sprintf("🌐 Server event - GameServer: [%s] running game [%s] has been deleted from Lobby.", base, table)
}

func splitServerURL(raw string) (base, table string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, ""
	}
	return u.Scheme + "://" + u.Host + u.Path, u.Query().Get("table")
}

// HelpMessage is the reply to an inbound message that is not a command.
func HelpMessage(events int64) string {
	var b strings.Builder
	b.WriteString("Reply START to receive game alerts or STOP to unsubscribe. ")
	fmt.Fprintf(&b, "There are currently %d rows in the event database.", events)
	return b.String()
}

// Confirmation replies for the opt-in/opt-out commands.
const (
	OptInReply  = "You are subscribed to game alerts. Reply STOP to unsubscribe."
	OptOutReply = "You are unsubscribed from game alerts. Reply START to subscribe again."
)
