package policy

import (
	"time"

	"github.com/fujinet/game-alerts/internal/model"
)

// ShouldNotify reports whether sub may receive a message for kind at now.
// The caller must record now as the subscriber's last notification exactly
// once when this returns true, however many channels the message goes out on.
func ShouldNotify(sub *model.Subscriber, kind model.EventKind, now time.Time, window time.Duration) bool {
	if sub == nil || !sub.Confirmed || !kind.Notifiable() {
		return false
	}
	if !optedIn(sub, kind) {
		return false
	}
	if sub.Throttle && !sub.LastNotified.IsZero() && now.Sub(sub.LastNotified) < window {
		return false
	}
	return true
}

func optedIn(sub *model.Subscriber, kind model.EventKind) bool {
	if kind == model.ServerStarted {
		return sub.NotifyServerStart
	}
	return sub.NotifyJoinLeave
}
