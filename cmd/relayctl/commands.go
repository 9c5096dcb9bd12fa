package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/fujinet/game-alerts/internal/account"
	"github.com/fujinet/game-alerts/internal/lock"
	"github.com/fujinet/game-alerts/internal/maintenance"
	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/store"
)

// --------------------------------------------------------------------------
// sweep command
// --------------------------------------------------------------------------

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the idle-server sweep now (skipped if another host holds the lock)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				var locker lock.Locker = lock.NewStoreLocker(e.store, logger)
				if e.cfg.RedisAddr != "" {
					rdb := redis.NewClient(&redis.Options{Addr: e.cfg.RedisAddr, Password: e.cfg.RedisPassword, DB: e.cfg.RedisDB})
					defer rdb.Close()
					locker = lock.NewRedisLocker(rdb, "game-alerts:", logger)
				}

				mcfg := maintenance.DefaultConfig()
				mcfg.SweepLease = e.cfg.SweepLease
				runner := maintenance.NewRunner(e.store, e.engine, locker, mcfg, logger)

				res, ran, err := runner.RunSweep(ctx)
				if err != nil {
					return err
				}
				if !ran {
					fmt.Println(warn("sweep already running elsewhere, nothing done"))
					return nil
				}
				fmt.Printf("%s %d idle server(s) refreshed\n", ok("sweep done:"), len(res.Updated))
				for _, u := range res.Updated {
					fmt.Println("  " + u)
				}
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// servers command
// --------------------------------------------------------------------------

func serversCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Inspect and remove game servers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every known server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				servers, err := e.store.ListServers(ctx)
				if err != nil {
					return err
				}
				printServers(os.Stdout, servers, time.Now())
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <serverurl>",
		Short: "Remove a server and announce it in chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				existed, err := e.engine.RemoveServer(ctx, args[0])
				if err != nil {
					return err
				}
				if !existed {
					return fmt.Errorf("no server with serverurl %s", args[0])
				}
				fmt.Println(ok("deleted"), args[0])
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// subscribers command
// --------------------------------------------------------------------------

func subscribersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscribers",
		Aliases: []string{"subs"},
		Short:   "Manage alert subscribers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				subs, err := e.store.ListSubscribers(ctx)
				if err != nil {
					return err
				}
				printSubscribers(os.Stdout, subs)
				return nil
			})
		},
	})

	var channel string
	optin := &cobra.Command{
		Use:   "optin <phone>",
		Short: "Confirm a number and turn on every alert category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch := model.Channel(strings.ToLower(channel))
			phone, err := account.NormalizePhone(args[0], ch)
			if err != nil {
				return err
			}
			return updateSubscriber(phone, true, func(s *model.Subscriber) {
				s.NotifyJoinLeave = true
				s.NotifyServerStart = true
				s.Confirmed = true
				s.EnableChannel(ch)
			})
		},
	}
	optin.Flags().StringVar(&channel, "channel", "sms", "Delivery channel (sms or whatsapp)")
	cmd.AddCommand(optin)

	cmd.AddCommand(&cobra.Command{
		Use:   "optout <phone>",
		Short: "Turn off every alert category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateSubscriber(args[0], false, func(s *model.Subscriber) {
				s.NotifyJoinLeave = false
				s.NotifyServerStart = false
			})
		},
	})

	var off bool
	throttle := &cobra.Command{
		Use:   "throttle <phone>",
		Short: "Limit a subscriber to one alert per throttle window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateSubscriber(args[0], false, func(s *model.Subscriber) {
				s.Throttle = !off
			})
		},
	}
	throttle.Flags().BoolVar(&off, "off", false, "Remove the throttle instead")
	cmd.AddCommand(throttle)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <phone>",
		Short: "Erase a subscriber",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				existed, err := e.store.DeleteSubscriber(ctx, args[0])
				if err != nil {
					return err
				}
				if !existed {
					return fmt.Errorf("no subscriber %s", args[0])
				}
				fmt.Println(ok("deleted"), args[0])
				return nil
			})
		},
	})
	return cmd
}

// updateSubscriber applies fn to phone's row. create allows a new row.
func updateSubscriber(phone string, create bool, fn func(*model.Subscriber)) error {
	return run(func(ctx context.Context, e *env) error {
		now := time.Now().UTC()
		sub, err := e.store.UpdateSubscriber(ctx, phone, func(prev *model.Subscriber) (*model.Subscriber, error) {
			if prev == nil && !create {
				return nil, store.ErrNotFound
			}
			next := model.Subscriber{CreatedAt: now}
			if prev != nil {
				next = *prev
			}
			fn(&next)
			next.UpdatedAt = now
			return &next, nil
		})
		if err != nil {
			return fmt.Errorf("update %s: %w", phone, err)
		}
		printSubscribers(os.Stdout, []model.Subscriber{*sub})
		return nil
	})
}

// --------------------------------------------------------------------------
// events / errors / stats commands
// --------------------------------------------------------------------------

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the event log",
	}

	var (
		limit  int
		follow bool
		every  time.Duration
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				events, err := e.store.ListEvents(ctx, store.ClampLimit(limit))
				if err != nil {
					return err
				}
				// oldest first, like tail
				for i := len(events) - 1; i >= 0; i-- {
					printEvent(os.Stdout, events[i])
				}
				if !follow {
					return nil
				}
				return followEvents(ctx, e.store, events, every)
			})
		},
	}
	tail.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")
	tail.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new events")
	tail.Flags().DurationVar(&every, "interval", 2*time.Second, "Poll interval with --follow")
	cmd.AddCommand(tail)
	return cmd
}

func followEvents(ctx context.Context, st store.Store, seen []model.EventRecord, every time.Duration) error {
	known := make(map[string]bool, len(seen))
	for _, ev := range seen {
		known[ev.ID] = true
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			events, err := st.ListEvents(ctx, store.DefaultListLimit)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			for i := len(events) - 1; i >= 0; i-- {
				if !known[events[i].ID] {
					known[events[i].ID] = true
					printEvent(os.Stdout, events[i])
				}
			}
		}
	}
}

func errorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Inspect delivery diagnostics",
	}
	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent delivery errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				recs, err := e.store.ListSmsErrors(ctx, store.ClampLimit(limit))
				if err != nil {
					return err
				}
				for i := len(recs) - 1; i >= 0; i-- {
					printSmsError(os.Stdout, recs[i])
				}
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	cmd.AddCommand(tail)
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				s, err := e.store.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("servers      %d\n", s.Servers)
				fmt.Printf("subscribers  %d (%d confirmed)\n", s.Subscribers, s.Confirmed)
				fmt.Printf("events       %d\n", s.Events)
				fmt.Printf("sms errors   %d\n", s.SmsErrors)
				return nil
			})
		},
	}
}
