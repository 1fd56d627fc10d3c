package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"tinyfm/internal/config"
	"tinyfm/internal/fsutil"
	"tinyfm/internal/httpserver"
	"tinyfm/internal/logger"
	"tinyfm/internal/session"
)

type serveOptions struct {
	configPath   string
	addr         string
	root         string
	user         string
	password     string
	passwordHash string
	noAuth       bool
	webdav       bool
	debug        bool
	maxConns     int
}

func NewServeCommand() *cobra.Command {
	return newServeCommand(&serveOptions{})
}

func newServeCommand(o *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [root]",
		Short: "Serve a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config(cmd, args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "path to config file (.json, .yaml)")
	f.StringVar(&o.addr, "addr", "", "listen address (default "+config.DefaultAddr+")")
	f.StringVar(&o.root, "root", "", "directory to serve (default: current directory)")
	f.StringVar(&o.user, "user", "", "login username")
	f.StringVar(&o.password, "password", "", "login password (hashed at startup)")
	f.StringVar(&o.passwordHash, "password-hash", "", "login password as bcrypt hash (see `tinyfm passwd`)")
	f.BoolVar(&o.noAuth, "no-auth", false, "disable the login step")
	f.BoolVar(&o.webdav, "webdav", false, "mount a read-only WebDAV view under /dav/")
	f.IntVar(&o.maxConns, "max-conns", 0, "cap on simultaneous connections (0 = unlimited)")
	f.BoolVar(&o.debug, "debug", false, "debug logging")
	return cmd
}

// config merges the config file (if any), flags and positional root.
// Flags win over the file.
func (o *serveOptions) config(cmd *cobra.Command, args []string) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Addr = o.addr
	}
	if changed("root") {
		cfg.Root = o.root
	}
	if len(args) == 1 {
		cfg.Root = args[0]
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if changed("user") {
		cfg.Auth.Username = o.user
	}
	if changed("password") {
		cfg.Auth.Password = o.password
	}
	if changed("password-hash") {
		cfg.Auth.Bcrypt = o.passwordHash
	}
	if changed("max-conns") {
		cfg.MaxConns = o.maxConns
	}
	if o.noAuth {
		off := false
		cfg.Auth.Enabled = &off
	}
	if o.webdav {
		cfg.WebDAV.Enabled = true
	}
	if o.debug {
		cfg.Debug = true
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	logger.SetDebug(cfg.Debug)
	if err := logger.Init(cfg.LogFile); err != nil {
		return err
	}
	defer logger.Close()
	log := logger.WithComponent("main")

	root, err := fsutil.NewRoot(cfg.Root)
	if err != nil {
		return err
	}
	cfg.Root = root.String()

	store, closeStore, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := httpserver.New(httpserver.Options{
		Config:   cfg,
		Root:     root,
		Sessions: store,
	})
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}

	hs := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()

	log.Info("tinyfm listening", "url", "http://"+ln.Addr().String()+"/", "root", cfg.Root,
		"auth", cfg.Auth.On(), "sessions", cfg.Sessions.Backend, "webdav", cfg.WebDAV.Enabled)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

func openSessions(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	ttl := cfg.Sessions.TTL.Duration
	switch cfg.Sessions.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Sessions.Redis.Addr,
			Password: cfg.Sessions.Redis.Password,
			DB:       cfg.Sessions.Redis.DB,
		})
		store := session.NewRedisStore(rdb, cfg.Sessions.Redis.Prefix, ttl)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return store, func() { rdb.Close() }, nil
	default:
		store := session.NewMemoryStore(ttl)
		janitorCtx, cancel := context.WithCancel(ctx)
		go store.Run(janitorCtx, sweepInterval(ttl))
		return store, cancel, nil
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if iv := ttl / 4; iv < time.Minute {
		return iv
	}
	return time.Minute
}
