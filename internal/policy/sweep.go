package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fujinet/game-alerts/internal/model"
)

// maxDigestGames bounds how many game names the digest spells out.
const maxDigestGames = 10

// SweepResult is the outcome of one idle-server pass.
type SweepResult struct {
	Updated []string
	Digest  string
}

// IsIdle reports whether s is empty and has not been touched within
// staleAfter.
func IsIdle(s model.ServerState, now time.Time, staleAfter time.Duration) bool {
	return s.CurPlayers == 0 && now.Sub(s.UpdatedAt) > staleAfter
}

// Sweep picks every idle server and returns their identifiers plus one
// digest line for the chat channel. The digest is empty when nothing is
// idle, so a second pass right after the first produces nothing.
func Sweep(states []model.ServerState, now time.Time, staleAfter time.Duration) SweepResult {
	var idle []model.ServerState
	for _, s := range states {
		if IsIdle(s, now, staleAfter) {
			idle = append(idle, s)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].ServerURL < idle[j].ServerURL })

	res := SweepResult{Updated: make([]string, 0, len(idle))}
	for _, s := range idle {
		res.Updated = append(res.Updated, s.ServerURL)
	}
	res.Digest = Digest(idle)
	return res
}

// Digest renders the consolidated daily sync line for the given servers.
func Digest(servers []model.ServerState) string {
	if len(servers) == 0 {
		return ""
	}

	seen := make(map[string]bool)
	var games []string
	for _, s := range servers {
		name := s.Game
		if name == "" {
			name = s.ServerURL
		}
		if !seen[name] {
			seen[name] = true
			games = append(games, name)
		}
	}
	sort.Strings(games)

	more := ""
	if len(games) > maxDigestGames {
		more = fmt.Sprintf(" and %d more", len(games)-maxDigestGames)
		games = games[:maxDigestGames]
	}
	return fmt.Sprintf("🌐 Server event- 24 hour sync: %d idle server(s) refreshed [%s%s].",
		len(servers), strings.Join(games, ", "), more)
}
