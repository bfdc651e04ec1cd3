package core

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/advens/darwin-go/internal/alert"
	"github.com/advens/darwin-go/internal/darwinlog"
	"github.com/advens/darwin-go/internal/darwinpacket"
	"github.com/advens/darwin-go/internal/forwarder"
	"github.com/advens/darwin-go/internal/rescache"
	"github.com/advens/darwin-go/internal/session"
	"github.com/advens/darwin-go/internal/task"
	"github.com/advens/darwin-go/internal/workerpool"
)

// Run instantiates the cache, alert manager, forwarder, worker pool,
// acceptor, and monitor for one filter instance, then blocks until a
// shutdown signal arrives. It implements spec.md §4.7's core
// responsibilities and §5's graceful-shutdown ordering: close the
// acceptor, let in-flight sessions finish, then stop the worker pool
// and forwarder. Returns a process exit code (0 success, 1 startup
// failure), matching spec.md §4.7's exit-code table.
func Run(args *Args, classifier task.Classifier) int {
	log := darwinlog.Default()
	log.SetLevel(darwinlog.ParseLevel(args.LogLevel))

	cfg, err := LoadConfig(args.ConfigPath)
	if err != nil {
		log.Error("core: load config failed", map[string]any{"err": err.Error()})
		return 1
	}

	if _, err := WritePIDFile(args.PidPath, args.FilterName); err != nil {
		log.Error("core: write pid file failed", map[string]any{"err": err.Error()})
		return 1
	}
	defer RemovePIDFile(args.PidPath, args.FilterName)

	alertMgr := alert.New(log)
	alertMgr.Configure(alert.Config{
		RedisSocketPath:  cfg.RedisSocketPath,
		RedisListName:    cfg.AlertRedisListName,
		RedisChannelName: cfg.AlertRedisChannelName,
		LogFilePath:      cfg.LogFilePath,
		FilterName:       args.FilterName,
		RuleName:         classifier.AlertRuleName(),
		DefaultTags:      classifier.AlertTags(),
	})
	defer alertMgr.Close()

	cache := rescache.New(args.CacheSize)

	var fwd *forwarder.Forwarder
	if args.NextFilterAddress != "" {
		f, err := forwarder.New(forwarder.Config{
			Address:     args.NextFilterAddress,
			MaxAttempts: forwarder.DefaultMaxAttempts,
		}, log)
		if err != nil {
			log.Error("core: forwarder setup failed", map[string]any{"err": err.Error()})
			return 1
		}
		fwd = f
		defer fwd.Close()
	}

	pool := workerpool.New(args.WorkerCount, 0, log)
	defer pool.Close()

	network, addr, err := forwarder.ParseAddress(args.ListenAddress, false)
	if err != nil {
		log.Error("core: invalid listen address", map[string]any{"err": err.Error()})
		return 1
	}
	ln, err := net.Listen(string(network), addr)
	if err != nil {
		log.Error("core: listen failed", map[string]any{"err": err.Error()})
		return 1
	}

	monitorLn, err := net.Listen("unix", args.MonitorSocketPath)
	if err != nil {
		log.Error("core: monitor listen failed", map[string]any{"err": err.Error()})
		return 1
	}

	factory := func() session.Config {
		var forwarderIface session.Forwarder
		if fwd != nil {
			forwarderIface = fwd
		}
		return session.Config{
			FilterName: args.FilterName,
			Classifier: classifier,
			Cache:      cache,
			Alert:      alertMgr,
			Forwarder:  forwarderIface,
			Threshold:  args.Threshold,
			Output:     args.Output,
			Limits:     darwinpacket.DefaultLimits(),
			Pool:       pool,
			Log:        log,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	acc := session.NewAcceptor(ln, factory, log)

	acceptorDone := make(chan error, 1)
	go func() { acceptorDone <- acc.Run(ctx) }()
	go session.ServeMonitor(ctx, monitorLn, log)

	shutdown := ShutdownSignals()
	rotate := RotateSignals()

	log.Info("core: filter started", map[string]any{
		"filter": args.FilterName, "listen": args.ListenAddress, "workers": args.WorkerCount,
	})

	for {
		select {
		case <-shutdown:
			log.Info("core: shutdown signal received", nil)
			cancel()
			<-acceptorDone
			return 0
		case <-rotate:
			log.Info("core: rotate signal received", nil)
			if err := alertMgr.Rotate(); err != nil {
				log.Error("core: rotate failed", map[string]any{"err": err.Error()})
			}
		case err := <-acceptorDone:
			if err != nil {
				log.Error("core: acceptor exited", map[string]any{"err": err.Error()})
			}
			cancel()
			return 0
		}
	}
}

// Daemonize re-execs the current process detached from the controlling
// terminal when args.Daemon is set, matching spec.md §4.7's --daemon
// flag. Grounded on pkg/proc/subprocess's process-spawning idiom
// (os.StartProcess/SysProcAttr), repurposed here for self re-exec since
// the teacher itself never daemonizes (no direct teacher precedent for
// this one operation -- see DESIGN.md). The caller passes the same
// argv it was started with; Daemonize returns true in the parent
// (which should exit immediately) and false in the already-detached
// child (which continues running in the foreground of its new session).
func Daemonize(argv []string) (isParent bool, err error) {
	if os.Getenv("DARWIN_DAEMONIZED") == "1" {
		return false, nil
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return true, fmt.Errorf("daemonize: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	proc, err := os.StartProcess(argv[0], argv, &os.ProcAttr{
		Dir:   ".",
		Env:   append(os.Environ(), "DARWIN_DAEMONIZED=1"),
		Files: []*os.File{devNull, devNull, devNull},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return true, fmt.Errorf("daemonize: %w", err)
	}
	_ = proc
	return true, nil
}
