package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/behavior"
	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/bridge"
	"agentarena.ai/internal/config"
	"agentarena.ai/internal/profiles"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runOptions struct {
	Name      string
	Profile   string
	Reconnect bool
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		gateway string
		opts    runOptions
	)
	cmd := &cobra.Command{
		Use:           "agentbot",
		Short:         "Connect one autonomous agent to a world gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if gateway != "" {
				cfg.World.GatewayURL = gateway
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := config.NewLogger(cfg.Logging.Writer(), "bot")
			return run(ctx, cfg, opts, bridge.WSDialer{HandshakeTimeout: 5 * time.Second}, logger)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "path to agentarena.yaml (defaults when empty)")
	f.StringVar(&gateway, "gateway", "", "world gateway websocket url")
	f.StringVar(&opts.Name, "name", "Agent_1", "in-world username")
	f.StringVar(&opts.Profile, "profile", profiles.Cooperative, "personality profile")
	f.BoolVar(&opts.Reconnect, "reconnect", true, "respawn after the session ends")
	return cmd
}

// run keeps one agent alive until ctx ends. With Reconnect set, a kicked or
// failed agent is respawned after the configured reconnect delay.
func run(ctx context.Context, cfg config.Config, opts runOptions, dialer bridge.Dialer, logger *log.Logger) error {
	cat := profiles.NewCatalogue()
	if cfg.ProfilesFile != "" {
		if err := cat.LoadFile(cfg.ProfilesFile); err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
	}
	if !cat.Has(opts.Profile) {
		return fmt.Errorf("unknown profile %q (have %v)", opts.Profile, cat.Names())
	}

	mgr := bot.NewManager(bot.ManagerConfig{
		MaxConnections: 1,
		ConnectTimeout: cfg.Bots.ConnectTimeout(),
		URL:            cfg.World.GatewayURL,
		Host:           cfg.Bots.DefaultHost,
		Port:           cfg.Bots.DefaultPort,
		Version:        cfg.Bots.ProtocolVersion,
		Auth:           cfg.Bots.DefaultAuth,
	}, dialer, logger)
	defer mgr.Close()

	limiter := actions.NewRateLimiter(cfg.Bots.MaxActionsPerSecond)
	reg := actions.NewRegistry()
	actions.RegisterDefaults(reg, actions.Options{
		MoveTimeout:   cfg.Actions.MoveTimeout(),
		MoveTolerance: cfg.Actions.MoveTolerance,
		JumpHold:      cfg.Actions.JumpHold(),
	})
	disp := actions.NewDispatcher(mgr, reg, limiter, logger)

	ended := make(chan string, 1)
	mgr.Subscribe(bot.ListenerFuncs{
		Removed: limiter.Forget,
		OnEvent: func(ev bot.Event) {
			if ev.Kind != bot.EventKicked {
				return
			}
			reason, _ := ev.Data["reason"].(string)
			select {
			case ended <- reason:
			default:
			}
		},
	})

	agents := behavior.NewAgents(behavior.AgentsConfig{
		Manager:    mgr,
		Dispatcher: disp,
		Profiles:   cat,
		Sinks: []behavior.EventSink{behavior.EventSinkFunc(func(ev behavior.ActionEvent) {
			logger.Printf("[%s] %s: %s", opts.Name, ev.Behavior, ev.Message)
		})},
		Logger: logger,
	})
	defer agents.Close()

	delay := time.Duration(cfg.Bots.ReconnectDelayMs) * time.Millisecond
	for {
		rec, err := agents.Spawn(ctx, opts.Name, opts.Profile)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			if !opts.Reconnect {
				return err
			}
			logger.Printf("spawn failed: %v (retrying in %s)", err, delay)
		default:
			logger.Printf("agent %s running as %s with profile %s", rec.AgentID, opts.Name, opts.Profile)
			select {
			case <-ctx.Done():
				return nil
			case reason := <-ended:
				logger.Printf("session ended: %s", reason)
				_, _ = agents.Terminate(rec.AgentID)
				if !opts.Reconnect {
					return fmt.Errorf("session ended: %s", reason)
				}
			}
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
