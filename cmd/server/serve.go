package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/pprof"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/behavior"
	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/bridge"
	"agentarena.ai/internal/broadcast"
	"agentarena.ai/internal/config"
	"agentarena.ai/internal/metrics"
	"agentarena.ai/internal/observer"
	"agentarena.ai/internal/persistence/indexdb"
	persistlog "agentarena.ai/internal/persistence/log"
	"agentarena.ai/internal/rpc"
	"agentarena.ai/internal/voice"
)

func newServeCmd() *cobra.Command {
	var (
		listen     string
		dataDir    string
		gatewayURL string
		disableDB  bool
		maxBots    int
		actionRate int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent server",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.ApplyEnv()
			f := cmd.Flags()
			if f.Changed("listen") {
				cfg.Server.Listen = listen
			}
			if f.Changed("data") {
				cfg.Data.Dir = dataDir
			}
			if f.Changed("gateway") {
				cfg.World.GatewayURL = gatewayURL
			}
			if f.Changed("disable_db") {
				cfg.Data.DisableDB = disableDB
			}
			if f.Changed("max_bots") {
				cfg.Bots.MaxConcurrentBots = maxBots
			}
			if f.Changed("max_actions_per_second") {
				cfg.Bots.MaxActionsPerSecond = actionRate
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()
			return serve(ctx, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&listen, "listen", ":8080", "http listen address")
	f.StringVar(&dataDir, "data", "./data", "runtime data directory")
	f.StringVar(&gatewayURL, "gateway", "", "world gateway websocket url")
	f.BoolVar(&disableDB, "disable_db", false, "disable the SQLite action/agent index")
	f.IntVar(&maxBots, "max_bots", 10, "maximum concurrent connections")
	f.IntVar(&actionRate, "max_actions_per_second", 5, "per-connection action rate limit")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logOut := cfg.Logging.Writer()
	if c, ok := logOut.(io.Closer); ok {
		defer c.Close()
	}
	a, err := buildApp(ctx, cfg, bridge.WSDialer{HandshakeTimeout: 5 * time.Second}, logOut)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	a.logger.Printf("listening on %s (gateway %s)", cfg.Server.Listen, cfg.World.GatewayURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	a.logger.Printf("shutting down")
	return nil
}

type app struct {
	cfg    config.Config
	logger *log.Logger

	metrics    *metrics.Metrics
	index      *indexdb.SQLiteIndex
	actionLog  *persistlog.ActionLogger
	manager    *bot.Manager
	dispatcher *actions.Dispatcher
	observer   *observer.Observer
	agents     *behavior.Agents
	hub        *broadcast.Hub
	voice      *voice.Service
	rpc        *rpc.Server
}

// buildApp wires every component. Nothing is global; Close tears the graph
// down in reverse order.
func buildApp(ctx context.Context, cfg config.Config, dialer bridge.Dialer, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: config.NewLogger(logOut, "server")}
	a.metrics = metrics.New()

	idx, err := openIndex(cfg.Data.Dir, cfg.Data.DisableDB)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	a.index = idx
	if idx != nil {
		a.metrics.IndexQueue(func() int { return idx.Stats().QueueDepth })
	} else {
		a.logger.Printf("action index disabled")
	}
	a.actionLog = persistlog.NewActionLogger(cfg.Data.Dir, config.NewLogger(logOut, "actionlog"))

	a.manager = bot.NewManager(bot.ManagerConfig{
		MaxConnections: cfg.Bots.MaxConcurrentBots,
		ConnectTimeout: cfg.Bots.ConnectTimeout(),
		URL:            cfg.World.GatewayURL,
		Host:           cfg.Bots.DefaultHost,
		Port:           cfg.Bots.DefaultPort,
		Version:        cfg.Bots.ProtocolVersion,
		Auth:           cfg.Bots.DefaultAuth,
	}, dialer, config.NewLogger(logOut, "bot"))
	a.metrics.TrackConnections(a.manager)

	limiter := actions.NewRateLimiter(cfg.Bots.MaxActionsPerSecond)
	reg := actions.NewRegistry()
	actions.RegisterDefaults(reg, actions.Options{
		MoveTimeout:   cfg.Actions.MoveTimeout(),
		MoveTolerance: cfg.Actions.MoveTolerance,
		JumpHold:      cfg.Actions.JumpHold(),
	})
	a.dispatcher = actions.NewDispatcher(a.manager, reg, limiter, config.NewLogger(logOut, "dispatch"))
	a.dispatcher.OnOutcome(a.metrics.ActionOutcome)
	a.manager.Subscribe(bot.ListenerFuncs{Removed: limiter.Forget})

	a.hub = broadcast.NewHub(a.manager, a.dispatcher, config.NewLogger(logOut, "broadcast"), broadcast.Options{
		OnListeners: a.metrics.SetListeners,
		OnDrop:      a.metrics.BroadcastDropped,
	})
	a.manager.Subscribe(a.hub)
	a.dispatcher.OnOutcome(a.hub.ActionOutcome)

	a.observer = observer.New(a.manager, a.metrics.StateSink(a.hub), config.NewLogger(logOut, "observer"))
	a.observer.Start(cfg.Observer.PollInterval())

	cat, err := loadCatalogue(cfg.ProfilesFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	acfg := behavior.AgentsConfig{
		Manager:    a.manager,
		Dispatcher: a.dispatcher,
		Profiles:   cat,
		Sinks:      []behavior.EventSink{a.hub, a.actionLog},
		Logger:     config.NewLogger(logOut, "behavior"),
	}
	if idx != nil {
		acfg.History = idx
		acfg.Records = idx
		acfg.Sinks = append(acfg.Sinks, idx)
	}
	a.agents = behavior.NewAgents(acfg)
	a.agents.Executor().OnTick = a.metrics.BehaviorTick

	if cfg.Voice.DiscordToken != "" {
		vlog := config.NewLogger(logOut, "voice")
		var synth voice.Synthesizer
		if cfg.Voice.TTSURL != "" {
			synth = voice.NewHTTPSynthesizer(cfg.Voice.TTSURL, cfg.Voice.TTSAPIKey, cfg.Voice.TTSVoice)
		}
		a.voice = voice.NewService(voice.NewDiscordPlatform(cfg.Voice.DiscordToken, vlog), synth, vlog)
		if err := a.voice.Start(ctx); err != nil {
			a.logger.Printf("voice: %v", err)
		}
	} else {
		a.logger.Printf("voice disabled (no discord token)")
	}

	rcfg := rpc.Config{
		Connections: a.manager,
		Dispatcher:  a.dispatcher,
		Agents:      a.agents,
		Profiles:    cat,
		HMACSecret:  cfg.RPC.HMACSecret,
		Logger:      config.NewLogger(logOut, "rpc"),
	}
	if a.voice != nil {
		rcfg.Voice = a.voice
	}
	a.rpc, err = rpc.NewServer(rcfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Handler() http.Handler {
	mux := http.NewServeMux()
	rh := a.rpc.Handler()
	mux.Handle("/healthz", rh)
	mux.Handle("/rpc", rh)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/v1/ws", a.hub.WSHandler())
	if a.cfg.Server.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		a.logger.Printf("pprof endpoints disabled (AA_ENABLE_PPROF_HTTP=false)")
	}
	return mux
}

func (a *app) Close() {
	if a.voice != nil {
		_ = a.voice.Stop()
	}
	if a.agents != nil {
		a.agents.Close()
	}
	if a.observer != nil {
		a.observer.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.manager != nil {
		_ = a.manager.Close()
	}
	if a.actionLog != nil {
		_ = a.actionLog.Close()
	}
	if a.index != nil {
		_ = a.index.Close()
	}
}

func openIndex(dataDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "agentarena.sqlite"))
}
