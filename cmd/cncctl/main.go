package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/skobkin/cncbridge/internal/app"
	"github.com/skobkin/cncbridge/internal/config"
	"github.com/skobkin/cncbridge/internal/controller"
	"github.com/skobkin/cncbridge/internal/persistence"
	"github.com/skobkin/cncbridge/internal/transport"
)

const (
	defaultFlushTimeout = 10 * time.Second
	usage               = "usage: cncctl [flags] <list|open|close|write|send|command|watch|ports|journal|version> [args]"
)

var errUsage = errors.New(usage)

type cliOptions struct {
	configFile   string
	host         string
	gatewayPort  int
	serial       string
	codec        string
	port         string
	baud         int
	listenFor    time.Duration
	flushTimeout time.Duration
	limit        int

	command string
	args    []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		slog.Error("run cncctl", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseArgs(argv)
	if err != nil {
		return err
	}

	switch opts.command {
	case "version":
		_, err := fmt.Fprintln(stdout, app.CurrentBuild())
		return err
	case "ports":
		return printPorts(stdout)
	case "journal":
		return runJournal(ctx, opts, stdout)
	case "list", "open", "close", "write", "send", "command", "watch":
		return runGateway(ctx, opts, stdin, stdout)
	default:
		return fmt.Errorf("unknown command %q: %w", opts.command, errUsage)
	}
}

func parseArgs(argv []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("cncctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configFile, "config", "", "config file path (.json, .yaml or .yml)")
	fs.StringVar(&opts.host, "host", "", "gateway ip/hostname")
	fs.IntVar(&opts.gatewayPort, "gateway-port", 0, "gateway tcp port")
	fs.StringVar(&opts.serial, "serial", "", "local serial port the gateway is attached to; switches to the serial connector")
	fs.StringVar(&opts.codec, "codec", "", "gateway message codec: json or protobuf")
	fs.StringVar(&opts.port, "port", "", "gateway-side serial port of the CNC controller")
	fs.IntVar(&opts.baud, "baud", 0, "controller baud rate")
	fs.DurationVar(&opts.listenFor, "listen-for", 0, "keep printing events for this long after the command, e.g. 5s")
	fs.DurationVar(&opts.flushTimeout, "flush-timeout", defaultFlushTimeout, "how long to wait for queued messages to be written")
	fs.IntVar(&opts.limit, "limit", 50, "journal entries to print")
	showVersion := fs.Bool("version", false, "print build version and exit")
	if err := fs.Parse(argv); err != nil {
		return cliOptions{}, fmt.Errorf("%v: %w", err, errUsage)
	}
	if *showVersion {
		opts.command = "version"
		return opts, nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return cliOptions{}, errUsage
	}
	opts.command = strings.ToLower(rest[0])
	opts.args = rest[1:]

	if opts.command == "command" && len(opts.args) == 0 {
		return cliOptions{}, fmt.Errorf("command requires a name: %w", errUsage)
	}
	if opts.command == "write" && len(opts.args) == 0 {
		return cliOptions{}, fmt.Errorf("write requires data: %w", errUsage)
	}

	return opts, nil
}

// apply copies explicitly set flags over the loaded config.
func (o cliOptions) apply(cfg *config.AppConfig) {
	if host := strings.TrimSpace(o.host); host != "" {
		cfg.Connection.Connector = config.ConnectorIP
		cfg.Connection.Host = host
	}
	if o.gatewayPort > 0 {
		cfg.Connection.Port = o.gatewayPort
	}
	if serialPort := strings.TrimSpace(o.serial); serialPort != "" {
		cfg.Connection.Connector = config.ConnectorSerial
		cfg.Connection.SerialPort = serialPort
	}
	if codec := strings.TrimSpace(o.codec); codec != "" {
		cfg.Connection.Codec = codec
	}
	if port := strings.TrimSpace(o.port); port != "" {
		cfg.Controller.Port = port
	}
	if o.baud > 0 {
		cfg.Controller.BaudRate = o.baud
	}
	cfg.Logging.LogToFile = false
}

func runGateway(ctx context.Context, opts cliOptions, stdin io.Reader, stdout io.Writer) error {
	rt, err := app.Initialize(ctx, app.Options{ConfigFile: opts.configFile, Override: opts.apply})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	logger := rt.LogManager.Logger("cli")
	ctrl := rt.Controller
	if strings.TrimSpace(ctrl.Port()) == "" && opts.command != "list" && opts.command != "watch" {
		return errors.New("missing controller port: set -port or save controller.port in config")
	}
	logger.Info("starting cncctl", "version", app.CurrentBuild().Version, "command", opts.command, "port", ctrl.Port())

	printer := newEventPrinter(stdout)
	for _, event := range controller.Events() {
		ctrl.On(event, printer.handler(event))
	}

	switch opts.command {
	case "list":
		ctrl.List()
	case "open":
		ctrl.Open()
	case "close":
		ctrl.Close()
	case "write":
		ctrl.Write(strings.Join(opts.args, " "))
	case "command":
		ctrl.Command(opts.args[0], stringArgs(opts.args[1:])...)
	case "send":
		if err := sendLines(ctx, ctrl, stdin); err != nil {
			return err
		}
	case "watch":
		logger.Info("watching gateway events")
	}

	flushCtx, cancel := context.WithTimeout(ctx, opts.flushTimeout)
	defer cancel()
	if err := rt.Flush(flushCtx); err != nil {
		return err
	}

	switch {
	case opts.listenFor > 0:
		logger.Info("listen mode", "duration", opts.listenFor)
		select {
		case <-ctx.Done():
		case <-time.After(opts.listenFor):
		}
	case opts.command == "watch":
		logger.Info("listening until interrupt")
		<-ctx.Done()
	}

	return nil
}

// sendLines writes every stdin line as one G-code line.
func sendLines(ctx context.Context, ctrl *controller.Controller, stdin io.Reader) error {
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		ctrl.WriteLine(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	return nil
}

func stringArgs(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}

	return out
}

func printPorts(stdout io.Writer) error {
	ports, err := transport.ListSerialPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		_, err := fmt.Fprintln(stdout, "no serial ports found")
		return err
	}
	for _, port := range ports {
		if _, err := fmt.Fprintln(stdout, port); err != nil {
			return err
		}
	}

	return nil
}

func runJournal(ctx context.Context, opts cliOptions, stdout io.Writer) error {
	paths, err := app.ResolvePaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Warn("close journal db", "error", closeErr)
		}
	}()

	if len(opts.args) > 0 && opts.args[0] == "clear" {
		if err := persistence.ClearJournal(ctx, db); err != nil {
			return err
		}
		_, err := fmt.Fprintln(stdout, "journal cleared")
		return err
	}

	entries, err := persistence.NewJournalRepo(db).ListRecent(ctx, opts.limit)
	if err != nil {
		return err
	}

	return printJournal(stdout, entries)
}

// printJournal prints oldest first so the output reads like a transcript.
func printJournal(stdout io.Writer, entries []persistence.JournalEntry) error {
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if _, err := fmt.Fprintf(stdout, "%s %-3s %s %s\n",
			entry.At.Format(time.RFC3339Nano), entry.Direction, entry.Name, formatArgs(entry.Args)); err != nil {
			return err
		}
	}

	return nil
}

type eventPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{w: w}
}

func (p *eventPrinter) handler(event controller.EventName) controller.Handler {
	return func(args ...any) {
		line := fmt.Sprintf("%s %s\n", event, formatArgs(args))
		p.mu.Lock()
		defer p.mu.Unlock()
		_, _ = io.WriteString(p.w, line)
	}
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args...)
	}

	return string(raw)
}
