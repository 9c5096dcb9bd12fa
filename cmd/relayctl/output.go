package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/fujinet/game-alerts/internal/model"
)

var (
	ok   = color.New(color.FgGreen, color.Bold).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	bad  = color.New(color.FgRed, color.Bold).SprintFunc()
	dim  = color.New(color.Faint).SprintFunc()
)

func kindLabel(k model.EventKind) string {
	switch k {
	case model.ServerStarted:
		return color.CyanString(string(k))
	case model.PlayerJoined:
		return color.GreenString(string(k))
	case model.PlayerLeft:
		return color.YellowString(string(k))
	case model.LastPlayerLeft:
		return color.MagentaString(string(k))
	default:
		return string(k)
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func printEvent(w io.Writer, e model.EventRecord) {
	fmt.Fprintf(w, "%s  %-18s %s [%d/%d] %s\n",
		dim(stamp(e.CreatedAt)), kindLabel(e.Kind), e.Game, e.CurPlayers, e.MaxPlayers, dim(e.ServerURL))
}

func printServers(w io.Writer, servers []model.ServerState, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GAME\tPLAYERS\tSTATUS\tUPDATES\tIDLE FOR\tSERVERURL")
	for _, s := range servers {
		players := fmt.Sprintf("%d/%d", s.CurPlayers, s.MaxPlayers)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.Game, players, s.Status, s.TotalUpdates, now.Sub(s.UpdatedAt).Round(time.Minute), s.ServerURL)
	}
	tw.Flush()
}

// flags renders a subscriber's switches compactly, e.g. "sms,wa jl,ss,thr".
func flags(s model.Subscriber) string {
	var ch, cat []string
	if s.SMS {
		ch = append(ch, "sms")
	}
	if s.WhatsApp {
		ch = append(ch, "wa")
	}
	if s.NotifyJoinLeave {
		cat = append(cat, "jl")
	}
	if s.NotifyServerStart {
		cat = append(cat, "ss")
	}
	if s.Throttle {
		cat = append(cat, "thr")
	}
	join := func(p []string) string {
		if len(p) == 0 {
			return "-"
		}
		return strings.Join(p, ",")
	}
	return join(ch) + " " + join(cat)
}

func printSubscribers(w io.Writer, subs []model.Subscriber) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PHONE\tCONFIRMED\tFLAGS\tLAST NOTIFIED")
	for _, s := range subs {
		confirmed := "no"
		if s.Confirmed {
			confirmed = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Phone, confirmed, flags(s), stamp(s.LastNotified))
	}
	tw.Flush()
}

func printSmsError(w io.Writer, r model.SmsErrorRecord) {
	dest := r.Destination
	if dest == "" {
		dest = r.ResourceSID
	}
	fmt.Fprintf(w, "%s  %s %-8s %s %s %s\n",
		dim(stamp(r.CreatedAt)), bad(r.Source), r.Channel, r.ErrorCode, dest, r.ErrorMessage)
}
