// Command darwinfilter is the process entry point shared by every
// Darwin filter instance: it parses arguments, loads configuration,
// builds the classifier named by filter_name, and runs until a
// terminating signal arrives. Grounded on cmd/broker/main.go's
// CLI-to-component-wiring-to-signal-loop shape.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/advens/darwin-go/internal/classifier/buffer"
	"github.com/advens/darwin-go/internal/classifier/hostlookup"
	"github.com/advens/darwin-go/internal/classifier/useragent"
	"github.com/advens/darwin-go/internal/classifier/yara"
	"github.com/advens/darwin-go/internal/core"
	"github.com/advens/darwin-go/internal/darwinlog"
	"github.com/advens/darwin-go/internal/task"
)

func main() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	args, err := core.ParseArgs("darwinfilter", argv[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "darwinfilter: %v\n", err)
		return 1
	}

	if args.Daemon {
		isParent, err := core.Daemonize(argv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "darwinfilter: %v\n", err)
			return 1
		}
		if isParent {
			return 0
		}
	}

	cfg, err := core.LoadConfig(args.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "darwinfilter: %v\n", err)
		return 1
	}

	classifier, stop, err := buildClassifier(args.FilterName, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "darwinfilter: %v\n", err)
		return 1
	}
	if stop != nil {
		defer stop()
	}

	return core.Run(args, classifier)
}

// buildClassifier dispatches on filter_name to construct the right
// classifier strategy, mirroring each filter binary's own Generator
// in the original source (one binary per filter there; one shared
// binary dispatching on filter_name here, since Go statically links
// every classifier into one darwinfilter executable). The returned
// stop hook, when non-nil, shuts down classifier-owned background
// machinery (the buffer filter's flushers).
func buildClassifier(filterName string, cfg *core.Config) (task.Classifier, func(), error) {
	switch filterName {
	case "hostlookup":
		c, err := hostlookup.Load(cfg.Database, cfg.DBType)
		return c, nil, err
	case "useragent":
		return buildUseragent(cfg)
	case "yara":
		// fastmode defaults to on when the config leaves it out.
		fastmode := cfg.Fastmode == nil || *cfg.Fastmode
		scanner, err := yara.CompileRuleFiles(cfg.RuleFileList, fastmode)
		if err != nil {
			return nil, nil, err
		}
		c, err := yara.Load(yara.Config{
			RuleFileList: cfg.RuleFileList,
			Fastmode:     fastmode,
			Timeout:      time.Duration(cfg.TimeoutSec) * time.Second,
		}, scanner)
		return c, nil, err
	case "buffer":
		return buildBuffer(cfg)
	default:
		return nil, nil, fmt.Errorf("unknown filter_name %q", filterName)
	}
}

func buildUseragent(cfg *core.Config) (task.Classifier, func(), error) {
	scorer, err := useragent.LoadTableScorer(cfg.ModelPath)
	if err != nil {
		return nil, nil, err
	}
	c, err := useragent.Load(useragent.Config{
		TokenMapPath: cfg.TokenMapPath,
		MaxTokens:    cfg.MaxTokens,
	}, scorer)
	return c, nil, err
}

func buildBuffer(cfg *core.Config) (task.Classifier, func(), error) {
	if cfg.RedisSocketPath == "" {
		return nil, nil, fmt.Errorf("buffer: redis_socket_path is required")
	}
	store := buffer.NewStore(buffer.NewRedisClient(cfg.RedisSocketPath), 0)

	inputs := make([]buffer.InputField, 0, len(cfg.InputFormat))
	for _, entry := range cfg.InputFormat {
		vt, err := buffer.ParseValueType(entry.Type)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, buffer.InputField{Name: entry.Name, Type: vt})
	}

	connectors := make([]buffer.Connector, 0, len(cfg.Outputs))
	for _, out := range cfg.Outputs {
		kind, err := buffer.ParseKind(out.FilterType)
		if err != nil {
			return nil, nil, err
		}
		conn, err := buffer.NewConnector(store, buffer.OutputConfig{
			Kind:             kind,
			SocketPath:       out.FilterSocketPath,
			Interval:         time.Duration(out.IntervalSec) * time.Second,
			RedisList:        out.RedisListName,
			RequiredLogLines: int64(out.RequiredLogLines),
		})
		if err != nil {
			return nil, nil, err
		}
		connectors = append(connectors, conn)
	}

	c, err := buffer.New(inputs, connectors)
	if err != nil {
		return nil, nil, err
	}

	flushers, err := buffer.NewManager(connectors, darwinlog.Default())
	if err != nil {
		return nil, nil, err
	}
	flushers.Start()
	return c, flushers.Stop, nil
}
