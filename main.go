package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	slog "github.com/vearne/simplelog"
	"github.com/vearne/wndprobe/biz"
	"github.com/vearne/wndprobe/capture"
	"github.com/vearne/wndprobe/config"
	"github.com/vearne/wndprobe/consts"
	"github.com/vearne/wndprobe/engine"
	"github.com/vearne/wndprobe/metrics"
	"github.com/vearne/wndprobe/policy"
	"github.com/vearne/wndprobe/sender"
	"github.com/vearne/wndprobe/util"
)

const banner string = `
                 _                 _
__      ___ __  __| |_ __  _ __ ___ | |__   ___
\ \ /\ / / '_ \/ _' | '_ \| '__/ _ \| '_ \ / _ \
 \ V  V /| | | | (_| | |_) | | | (_) | |_) |  __/
  \_/\_/ |_| |_|\__,_| .__/|_|  \___/|_.__/ \___|
                     |_|
`

var settings = config.Default()
var version bool

func init() {
	flag.BoolVar(&version, "version", false,
		"print version")

	flag.DurationVar(&settings.ExitAfter, "exit-after", 0, "exit after specified duration")
	flag.StringVar(&settings.LogLevel, "log-level", settings.LogLevel,
		"debug or info, SIMPLE_LOG_LEVEL takes precedence")
	flag.StringVar(&settings.ConfigFile, "config", "",
		"YAML config file, flags given on the command line override it")

	// #################### capture ######################
	flag.StringVar(&settings.Interface, "iface", settings.Interface,
		"interface the embedded client talks to")
	flag.IntVar(&settings.Port, "port", settings.Port,
		`port the embedded client connects to:
                # the kernel must not answer on it
                iptables -A OUTPUT -p tcp --sport 3333 --tcp-flags RST RST -j DROP
                wndprobe --iface=eth0 --port=3333`)
	flag.BoolVar(&settings.Promiscuous, "capture-promisc", settings.Promiscuous, "")
	flag.DurationVar(&settings.BufferTimeout, "capture-buffer-timeout", settings.BufferTimeout, "")
	flag.IntVar(&settings.Snaplen, "capture-snaplen", settings.Snaplen,
		"0 means interface MTU + 200")
	flag.StringVar(&settings.CaptureDump, "capture-dump", "",
		"write every captured segment to this pcap file")
	flag.IntVar(&settings.LogCapacity, "capture-log-capacity", settings.LogCapacity,
		"number of captured segments kept for lookups")

	// #################### session ######################
	flag.Var(&settings.Policy, "policy",
		`single | chunked | fragmented
                # header and body in one segment, larger than the advertised window
                wndprobe --policy=single --body-length=1380
                # wait for an ack after each chunk
                wndprobe --policy=chunked --chunk-size=500 --chunk-size=500`)
	flag.Var(&settings.BodyLength, "body-length", "response body length, e.g. 1380 or 2kb")
	flag.Var(&config.MultiIntOption{Params: &settings.ChunkSizes}, "chunk-size",
		"chunk sizes of the chunked policy, the remainder is sent last")
	flag.Var(&settings.FragmentSize, "fragment-size", "chunk size of the fragmented policy")
	flag.DurationVar(&settings.FragmentDelay, "fragment-delay", settings.FragmentDelay, "")
	flag.BoolVar(&settings.AckFinalChunk, "ack-final-chunk", settings.AckFinalChunk,
		"chunked policy waits for the ack of the final chunk too")
	flag.StringVar(&settings.RequestMarker, "request-marker", settings.RequestMarker,
		"payload prefix of the request, empty accepts any HTTP/1 request line")
	flag.IntVar(&settings.Window, "window", settings.Window, "advertised receive window")
	flag.DurationVar(&settings.PollInterval, "poll-interval", settings.PollInterval, "")
	flag.DurationVar(&settings.Timeouts.SYN, "syn-timeout", settings.Timeouts.SYN, "")
	flag.DurationVar(&settings.Timeouts.HandshakeACK, "handshake-ack-timeout", settings.Timeouts.HandshakeACK, "")
	flag.DurationVar(&settings.Timeouts.Request, "request-timeout", settings.Timeouts.Request, "")
	flag.DurationVar(&settings.Timeouts.DataACK, "data-ack-timeout", settings.Timeouts.DataACK, "")
	flag.DurationVar(&settings.Timeouts.FIN, "fin-timeout", settings.Timeouts.FIN, "")
	flag.Var(&settings.SendEngine, "send-engine", "libpcap | raw_socket")

	// #################### output ######################
	flag.BoolVar(&settings.OutputStdout, "output-stdout", false,
		"Just prints session reports to console")

	flag.Var(&config.MultiStringOption{Params: &settings.OutputFileDir},
		"output-file-directory",
		`Write session reports to file:
		        wndprobe --port=3333 --output-file-directory="/tmp/wndprobe"`)

	flag.IntVar(&settings.OutputFileMaxSize, "output-file-max-size", settings.OutputFileMaxSize,
		"MaxSize is the maximum size in megabytes of the log file before it gets rotated.")

	flag.IntVar(&settings.OutputFileMaxBackups, "output-file-max-backups", settings.OutputFileMaxBackups,
		"MaxBackups is the maximum number of old log files to retain.")

	flag.IntVar(&settings.OutputFileMaxAge, "output-file-max-age", settings.OutputFileMaxAge,
		`MaxAge is the maximum number of days to retain old log files
				based on the timestamp encoded in their filename`)

	flag.Var(&config.MultiStringOption{Params: &settings.OutputKafkaHost}, "output-kafka-host",
		`wndprobe --output-kafka-host="192.168.2.100:9092" --output-kafka-topic=wndprobe`)
	flag.StringVar(&settings.OutputKafkaTopic, "output-kafka-topic", settings.OutputKafkaTopic, "")

	flag.StringVar(&settings.Codec, "codec", settings.Codec, "json | simple")

	flag.StringVar(&settings.IncludeFilterOutcomeMatch, "include-filter-outcome-match", "",
		`only output reports whose outcome matches the specified regular expression`)
	flag.IntVar(&settings.RateLimitQPS, "rate-limit-qps", 0, "reports per second, 0 means unlimited")
	flag.StringVar(&settings.MetricsAddr, "metrics-addr", "",
		`serve Prometheus metrics, e.g. ":9100"`)
}

func main() {
	fmt.Print(banner)

	flag.Parse()
	if version {
		fmt.Println("service: wndprobe")
		fmt.Println("Version", consts.Version)
		fmt.Println("BuildTime", consts.BuildTime)
		fmt.Println("GitTag", consts.GitTag)
		return
	}

	if settings.ConfigFile != "" {
		if err := loadConfigFile(settings.ConfigFile); err != nil {
			slog.Fatal("load config error:%v", err)
		}
	}

	adjustLogLevel(settings.LogLevel)

	if err := settings.Validate(); err != nil {
		slog.Fatal("invalid settings:%v", err)
	}
	printSettings(&settings)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if settings.ExitAfter > 0 {
		slog.Info("Running wndprobe for a duration of %s", settings.ExitAfter)
		ctx, cancel = context.WithTimeout(ctx, settings.ExitAfter)
		defer cancel()
	}

	checkListeners(ctx, settings.Port)

	// ----------capture----------
	log := capture.NewCaptureLog(settings.LogCapacity)
	dispatcher := capture.NewDispatcher(settings.Interface, settings.Port, capture.PcapOptions{
		BufferTimeout: settings.BufferTimeout,
		Promiscuous:   settings.Promiscuous,
		Snaplen:       settings.Snaplen,
		DumpFile:      settings.CaptureDump,
	}, log)
	if err := dispatcher.Activate(); err != nil {
		slog.Fatal("%v", engine.NewSetupError("capture", err))
	}
	if err := dispatcher.Start(); err != nil {
		slog.Fatal("%v", engine.NewSetupError("capture", err))
	}

	s, err := newSender(&settings)
	if err != nil {
		dispatcher.Stop(time.Second)
		slog.Fatal("%v", engine.NewSetupError("sender", err))
	}
	defer s.Close()

	// ----------report----------
	filterChain, err := biz.NewFilterChain(&settings)
	if err != nil {
		slog.Fatal("create FilterChain error:%v", err)
	}
	plugins, err := biz.NewPlugins(&settings)
	if err != nil {
		slog.Fatal("create plugins error:%v", err)
	}
	slog.Info("plugins:%v", plugins)
	emitter := biz.NewEmitter(filterChain, biz.NewRateLimit(&settings), biz.DefaultQueueSize)
	emitter.Start(plugins)
	defer emitter.Close()

	if settings.MetricsAddr != "" {
		server := metrics.Serve(settings.MetricsAddr)
		defer server.Stop()
	}

	// ----------engine----------
	running := util.NewRunFlag()
	e := engine.New(&settings, log, s, policy.New(&settings), engine.Options{
		Publisher: emitter,
		Running:   running,
	})

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	go func() {
		select {
		case sig := <-c:
			slog.Info("receive signal:%v, stopping", sig)
			running.Stop()
			cancel()
		case <-ctx.Done():
		}
	}()

	if err = e.Run(ctx); err != nil {
		slog.Error("engine error:%v", err)
	}

	if !dispatcher.Stop(time.Second) {
		slog.Warn("[CAPTURE] dispatcher did not stop in time")
	}
}

// loadConfigFile reads the YAML file, then parses the command line again so
// that flags given there win over the file.
func loadConfigFile(path string) error {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if err := config.LoadFile(path, &settings); err != nil {
		return err
	}

	// repeated flags append, start them over
	if set["chunk-size"] {
		settings.ChunkSizes = nil
	}
	if set["output-file-directory"] {
		settings.OutputFileDir = nil
	}
	if set["output-kafka-host"] {
		settings.OutputKafkaHost = nil
	}
	return flag.CommandLine.Parse(os.Args[1:])
}

func newSender(settings *config.AppSettings) (sender.Sender, error) {
	if settings.SendEngine == config.EngineRawSocket {
		s, err := sender.NewRawSender(settings.Interface)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := sender.NewPcapSender(settings.Interface)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// the kernel answers the handshake itself when something listens on the port
func checkListeners(ctx context.Context, port int) {
	conns, err := util.PortListeners(ctx, port)
	if err != nil {
		slog.Warn("list listeners error:%v", err)
		return
	}
	for _, conn := range conns {
		slog.Warn("pid %v already listens on %v:%v, the kernel will answer the handshake",
			conn.Pid, conn.Laddr.IP, conn.Laddr.Port)
	}
}

func printSettings(settings *config.AppSettings) {
	slog.Info("iface, %v", settings.Interface)
	slog.Info("port, %v", settings.Port)
	slog.Info("policy, %v", settings.Policy.String())
	slog.Info("body-length, %v", settings.BodyLength)
	slog.Info("chunk-size, %v", settings.Chunks())
	slog.Info("send-engine, %v", settings.SendEngine.String())
	slog.Info("window, %v", settings.Window)
	slog.Info("timeouts, %+v", settings.Timeouts)

	slog.Info("output-stdout, %v", settings.OutputStdout)
	slog.Info("output-file-directory, %v", settings.OutputFileDir)
	slog.Info("output-kafka-host, %v", settings.OutputKafkaHost)
	slog.Info("output-kafka-topic, %v", settings.OutputKafkaTopic)
}

func adjustLogLevel(level string) {
	logLevel := os.Getenv("SIMPLE_LOG_LEVEL")
	if len(logLevel) > 0 {
		return
	}
	if level == "debug" {
		slog.SetLevel(slog.DebugLevel)
		return
	}
	slog.SetLevel(slog.InfoLevel)
}
