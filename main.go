package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"

	"hostscan/api"
	"hostscan/bans"
	"hostscan/cli"
	"hostscan/config"
	"hostscan/eventloop"
	"hostscan/exempt"
	"hostscan/geo"
	"hostscan/listener"
	"hostscan/logging"
	"hostscan/probes"
	"hostscan/scanner"
)

func main() {
	opts, err := cli.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		if cli.IsHelp(err) {
			return
		}
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(opts cli.Options) error {
	settings, err := config.LoadSettings(opts.EnvFile)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}
	if opts.ConfigFile != "" {
		settings.ConfigFile = opts.ConfigFile
	}
	logger := logging.Configure(settings.LogLevel)

	binder := config.NewBinder(logger)
	if opts.ConfigTest {
		return configTest(binder, settings.ConfigFile, os.Stdout)
	}
	if _, err := binder.LoadFile(settings.ConfigFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		logger.Warn("configuration file not found", "path", settings.ConfigFile)
		binder.Bind(nil)
	}

	exemptions, err := exempt.Parse(settings.Exempt)
	if err != nil {
		return err
	}
	locator, err := geo.Open(settings.GeoIPDB, logger)
	if err != nil {
		logger.Warn("geoip disabled", "error", err)
		locator = nil
	}
	defer locator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := eventloop.New(eventloop.Options{TickInterval: settings.ResultTick, Logger: logger})
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go func() { _ = loop.Run(loopCtx) }()

	registry := scanner.NewRegistry()
	results := scanner.NewResultQueue(scanner.DefaultQueueSize)
	dispatcher, err := scanner.NewDispatcher(registry, results, exemptions, scanner.DispatcherOptions{
		PoolSize:     settings.PoolSize,
		ProbeTimeout: settings.ProbeTimeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	module := scanner.NewModule(registry, dispatcher, results, scanner.NewReaper(registry, settings.ReaperInterval, logger), logger)

	probeCfg := probes.Config{
		SOCKSPorts: settings.SOCKSPorts,
		HTTPPorts:  settings.HTTPPorts,
		Pacer:      probes.NewPacer(settings.DialRate, settings.DialBurst),
	}
	if addr, ok := binder.Endpoint(); ok {
		endpoint, err := probes.NewEndpointServer(addr, logger)
		if err != nil {
			return err
		}
		if err := endpoint.Start(); err != nil {
			return err
		}
		defer endpoint.Close()
		probeCfg.Endpoint = addr
		probeCfg.Token = endpoint.Token()
	}
	module.Init(probes.New(probeCfg, logger).Hooks()...)
	module.Load(loop)

	table := bans.NewTable()
	var propagators []bans.Propagator

	var redisClient *redis.Client
	if settings.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: settings.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", settings.RedisAddr, err)
		}
		propagators = append(propagators, bans.NewRedisPropagator(redisClient, ""))
	}
	if settings.PubSubProject != "" && settings.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, settings.PubSubProject)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		defer client.Close()
		topic := client.Topic(settings.PubSubTopic)
		defer topic.Stop()
		propagators = append(propagators, bans.NewPubSubPropagator(topic))
	}

	issuer := bans.NewNetworkIssuer(table, logger, propagators...)
	var banGeo bans.Locator
	if locator != nil {
		banGeo = locator
	}
	applier := bans.NewApplier(results, issuer, bans.ApplierOptions{
		ServerName: settings.ServerName,
		Duration:   settings.BanDuration,
		Geo:        banGeo,
		Logger:     logger,
	})
	loop.OnTick(func() { applier.Tick() })
	loop.Every("ban_expiry", time.Minute, func() {
		if n := table.Expire(time.Now()); n > 0 {
			logger.Info("expired host bans", "count", n, "remaining", table.Len())
		}
	})

	clients := &listener.Listener{
		Addr:      settings.ListenAddr,
		OnConnect: module.OnLocalConnect,
		Handler:   greet,
		Logger:    logger,
	}
	if err := clients.Start(); err != nil {
		return err
	}

	router := api.NewRouter(api.Deps{
		Module:   module,
		Loop:     loop,
		Bans:     table,
		Exempt:   exemptions,
		Endpoint: binder,
	}, api.Config{
		APIKey:    settings.APIKey,
		Redis:     redisClient,
		RateLimit: settings.RedisRateLimit,
		Logger:    logger,
	})
	apiErr := make(chan error, 1)
	go func() { apiErr <- api.Serve(ctx, settings.APIAddr, router, logger) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-apiErr:
		if err != nil {
			logger.Error("admin api stopped", "error", err)
		}
		stop()
	}

	return shutdown(clients, module, loop, stopLoop, logger)
}

// shutdown stops accepting clients, then waits for in-flight scans to be
// reaped before the core loop exits.
func shutdown(clients *listener.Listener, module *scanner.Module, loop *eventloop.Loop, stopLoop context.CancelFunc, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := clients.Stop(ctx); err != nil {
		logger.Warn("listener did not stop cleanly", "error", err)
	}
	err := module.Shutdown(ctx)
	if err != nil {
		logger.Error("scan module did not unload", "records", module.Registry.Len(), "error", err)
	}
	stopLoop()
	<-loop.Done()
	return err
}

func configTest(binder *config.Binder, path string, out io.Writer) error {
	problems, err := binder.LoadFile(path)
	if err != nil {
		return err
	}
	for _, p := range problems {
		fmt.Fprintln(out, p)
	}
	if _, ok := binder.Endpoint(); !ok {
		fmt.Fprintln(out, "scan: no set::scan::endpoint made")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d configuration error(s) in %s", len(problems), path)
	}
	fmt.Fprintf(out, "configuration file %s is OK\n", path)
	return nil
}

func greet(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, _ = io.WriteString(conn, "NOTICE AUTH :*** Checking your connection for open proxies\r\n")
}
