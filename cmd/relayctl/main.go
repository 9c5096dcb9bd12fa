// Command relayctl is the game alerts admin CLI. It works directly against
// the configured store, so it runs on any host that shares DATABASE_URL.
//
// Usage:
//
//	relayctl sweep
//	relayctl servers list
//	relayctl servers delete "http://lobby.example/play?table=reversi"
//	relayctl subscribers list
//	relayctl subscribers optin +15550100123 --channel whatsapp
//	relayctl subscribers throttle +15550100123 --off
//	relayctl events tail --limit 20 --follow
//	relayctl errors tail
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fujinet/game-alerts/internal/config"
	"github.com/fujinet/game-alerts/internal/logging"
	"github.com/fujinet/game-alerts/internal/notify"
	"github.com/fujinet/game-alerts/internal/relay"
	"github.com/fujinet/game-alerts/internal/store"
	"github.com/fujinet/game-alerts/internal/store/backend"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Game alerts relay admin CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(sweepCmd())
	root.AddCommand(serversCmd())
	root.AddCommand(subscribersCmd())
	root.AddCommand(eventsCmd())
	root.AddCommand(errorsCmd())
	root.AddCommand(statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, bad("error:"), err)
		os.Exit(1)
	}
}

// env is what every command runs against.
type env struct {
	cfg    *config.Config
	store  store.Store
	engine *relay.Engine
}

// run loads configuration, opens the store and builds an engine wired to the
// configured sinks, then calls fn.
func run(fn func(ctx context.Context, e *env) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if os.Getenv("LOG_LEVEL") != "" {
		logger = logging.NewWithWriter(os.Stderr, cfg.LogLevel)
	}

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var chat notify.ChatSink = notify.LogChat{Logger: logger}
	if cfg.DiscordWebhook != "" {
		if chat, err = notify.NewDiscord(cfg.DiscordWebhook, cfg.OutboundTimeout); err != nil {
			return fmt.Errorf("discord: %w", err)
		}
	}
	var messages notify.MessageSink = notify.LogMessages{Logger: logger}
	if cfg.TwilioEnabled() {
		messages = notify.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioNumber, cfg.OutboundTimeout, logger)
	}

	engine := relay.New(st, chat, messages, nil, relay.Options{
		ThrottleWindow:  cfg.ThrottleWindow,
		StaleAfter:      cfg.SweepStale,
		DispatchTimeout: cfg.OutboundTimeout,
	}, logger)
	defer engine.Wait()

	return fn(ctx, &env{cfg: cfg, store: st, engine: engine})
}
