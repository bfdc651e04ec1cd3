package core

import (
	"flag"
	"fmt"

	"github.com/advens/darwin-go/internal/task"
)

// Args holds the parsed command-line arguments for a filter binary,
// per spec.md §4.7: filter_name, config_path, monitor_socket_path,
// pid_path, listen_address, worker count, cache size, threshold,
// output mode, next-filter address, plus --daemon/--log-level flags.
type Args struct {
	FilterName        string
	ConfigPath        string
	MonitorSocketPath string
	PidPath           string
	ListenAddress     string
	WorkerCount       int
	CacheSize         int
	Threshold         uint32
	Output            task.OutputMode
	NextFilterAddress string
	Daemon            bool
	LogLevel          string
}

// ParseArgs parses argv (excluding argv[0]) into Args. --daemon and
// --log-level, if given, must precede the positional arguments (the
// stdlib flag package's usual flags-then-positionals convention);
// the ten positionals then follow in the fixed order above, matching
// the teacher's os.Args-plus-flag.Parse idiom in cmd/broker/main.go,
// extended for Darwin's longer positional list.
func ParseArgs(progName string, argv []string) (*Args, error) {
	fs := flag.NewFlagSet(progName, flag.ContinueOnError)
	daemon := fs.Bool("daemon", false, "fork into the background")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	pos := fs.Args()
	if len(pos) < 10 {
		return nil, fmt.Errorf("expected 10 positional arguments, got %d", len(pos))
	}

	worker, err := parseInt(pos[5], "worker count")
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt(pos[6], "cache size")
	if err != nil {
		return nil, err
	}
	threshold, err := parseUint32(pos[7], "threshold")
	if err != nil {
		return nil, err
	}
	output, err := parseOutputMode(pos[8])
	if err != nil {
		return nil, err
	}

	return &Args{
		FilterName:        pos[0],
		ConfigPath:        pos[1],
		MonitorSocketPath: pos[2],
		PidPath:           pos[3],
		ListenAddress:     pos[4],
		WorkerCount:       worker,
		CacheSize:         cacheSize,
		Threshold:         threshold,
		Output:            output,
		NextFilterAddress: pos[9],
		Daemon:            *daemon,
		LogLevel:          *logLevel,
	}, nil
}

func parseInt(s, field string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return n, nil
}

func parseUint32(s, field string) (uint32, error) {
	var n uint32
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return n, nil
}

func parseOutputMode(s string) (task.OutputMode, error) {
	switch s {
	case "NONE":
		return task.OutputNone, nil
	case "LOG":
		return task.OutputLog, nil
	case "RAW":
		return task.OutputRaw, nil
	case "PARSED":
		return task.OutputParsed, nil
	default:
		return 0, fmt.Errorf("invalid output mode %q: must be one of RAW|LOG|NONE|PARSED", s)
	}
}
