// cmd/server runs one feed replica.
//
// Usage:
//
//	feed-server 0 CC
//	feed-server --id 2 --model EC --delays 1=5s
//	FEED_NODE_ID=1 FEED_PEERS=http://a:8080,http://b:8080 feed-server
//
// Flags and positional arguments override FEED_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"replicated-feed/internal/api"
	"replicated-feed/internal/cluster"
	"replicated-feed/internal/config"
	"replicated-feed/internal/delivery"
	"replicated-feed/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		id          int
		model       string
		peers       string
		listen      string
		delays      string
		sendTimeout time.Duration
		logLevel    string
		logFormat   string
	)

	cmd := &cobra.Command{
		Use:           "feed-server [id] [EC|CC]",
		Short:         "Run one replica of the replicated feed",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("id") {
				cfg.NodeID = id
			}
			if flags.Changed("model") {
				cfg.Model = model
			}
			if flags.Changed("peers") {
				if cfg.Peers, err = config.ParsePeers(peers); err != nil {
					return err
				}
			}
			if flags.Changed("listen") {
				cfg.ListenAddr = listen
			}
			if flags.Changed("delays") {
				cfg.Delays = delays
			}
			if flags.Changed("send-timeout") {
				cfg.SendTimeout = sendTimeout
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			if len(args) > 0 {
				if cfg.NodeID, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("%w: %q", config.ErrInvalidNodeID, args[0])
				}
			}
			if len(args) > 1 {
				cfg.Model = args[1]
			}

			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.IntVar(&id, "id", 0, "own process id, index into --peers")
	f.StringVar(&model, "model", "CC", "consistency model: EC or CC")
	f.StringVar(&peers, "peers", strings.Join(config.DefaultPeers, ","), "comma-separated base URLs of every process, self included")
	f.StringVar(&listen, "listen", "", "listen address (default: port of own peer URL)")
	f.StringVar(&delays, "delays", "", "per-destination share delays, e.g. 2=30s,1=500ms")
	f.DurationVar(&sendTimeout, "send-timeout", 5*time.Second, "timeout of each share request")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&logFormat, "log-format", logging.FormatJSON, "json or console")

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	m, err := delivery.ParseModel(cfg.Model)
	if err != nil {
		return err
	}
	delays, err := config.ParseDelays(cfg.Delays)
	if err != nil {
		return err
	}
	addr, err := cfg.Listen()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.Int("process", cfg.NodeID))

	members, err := cluster.NewMembership(cfg.NodeID, cfg.Peers)
	if err != nil {
		return err
	}
	engine, err := delivery.NewEngine(cfg.NodeID, members.N(), m, log)
	if err != nil {
		return err
	}
	fanout := cluster.NewFanout(members,
		cluster.NewHTTPSender(members, cfg.SendTimeout),
		cluster.TimerScheduler{},
		log,
		cluster.WithDelays(delays),
		cluster.WithSendTimeout(cfg.SendTimeout))
	node := cluster.NewNode(engine, members, fanout, log)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(api.NewAPI(node, log)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting replica",
			zap.String("addr", addr),
			zap.String("model", string(m)),
			zap.Int("processes", members.N()),
			zap.String("delays", config.FormatDelays(delays)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
