package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/zmlAEQ/pingburst/internal/config"
	"github.com/zmlAEQ/pingburst/internal/confirm"
	"github.com/zmlAEQ/pingburst/internal/journal"
	"github.com/zmlAEQ/pingburst/internal/monitoring"
	"github.com/zmlAEQ/pingburst/internal/p2p"
	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/internal/report"
	"github.com/zmlAEQ/pingburst/internal/rpc"
	"github.com/zmlAEQ/pingburst/internal/sender"
	"github.com/zmlAEQ/pingburst/internal/signer"
	"github.com/zmlAEQ/pingburst/internal/token"
	"github.com/zmlAEQ/pingburst/internal/transport"
	"github.com/zmlAEQ/pingburst/pkg/bus"
	"github.com/zmlAEQ/pingburst/pkg/lifecycle"
	"github.com/zmlAEQ/pingburst/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	logger.Sync()
	os.Exit(code)
}

type options struct {
	configPath string
	keypair    string
	url        string
	ws         string
	leader     string
	commitment string
	logLevel   string
	monAddr    string
	journal    string
	webhook    string
	confirmWS  bool
	maxRounds  int
}

const usage = "usage: pingburst [global flags] ping <NUMBER_OF_MESSAGES> [--use-rpc]"

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var o options
	fs := flag.NewFlagSet("pingburst", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&o.configPath, "C", config.DefaultPath(), "Configuration file to use (shorthand)")
	fs.StringVar(&o.configPath, "config", config.DefaultPath(), "Configuration file to use")
	fs.StringVar(&o.keypair, "keypair", "", "Filepath to a keypair [default: value from configuration file]")
	fs.StringVar(&o.url, "u", "", "JSON RPC URL or moniker (shorthand)")
	fs.StringVar(&o.url, "url", "", "JSON RPC URL or moniker (m, t, d, l) [default: value from configuration file]")
	fs.StringVar(&o.ws, "ws", "", "Websocket URL [default: derived from the RPC URL]")
	fs.StringVar(&o.leader, "leader", "", "Leader multiaddr for direct submission, including /p2p/<id>")
	fs.StringVar(&o.commitment, "commitment", "", "Confirmation level: processed, confirmed or finalized")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.monAddr, "monitoring", "", "Serve /metrics and /healthz on this address")
	fs.StringVar(&o.journal, "journal", "", "Append dispatches and outcomes to this JSON-lines file")
	fs.StringVar(&o.webhook, "report-webhook", "", "POST the run summary to this URL")
	fs.BoolVar(&o.confirmWS, "confirm-ws", false, "Track confirmations over the websocket feed instead of polling")
	fs.IntVar(&o.maxRounds, "max-rounds", sender.DefaultConfig().MaxRounds, "Dispatch rounds before a payload fails")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 || rest[0] != "ping" {
		fs.Usage()
		return 2
	}

	ps := flag.NewFlagSet("ping", flag.ContinueOnError)
	ps.SetOutput(stderr)
	useRPC := ps.Bool("use-rpc", false, "Send transactions over RPC instead of directly to the leader")
	flags, pos := splitArgs(rest[1:])
	if err := ps.Parse(flags); err != nil {
		return 2
	}
	if len(pos) != 1 {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	n, err := strconv.ParseUint(pos[0], 10, 31)
	if err != nil {
		fmt.Fprintf(stderr, "error: invalid number of messages %q\n", pos[0])
		return 2
	}

	if o.logLevel != "" {
		if err := logger.SetLevel(o.logLevel); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 2
		}
	}
	cfg, err := resolve(o)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	kp, err := signer.LoadKeypair(cfg.KeypairPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	mode := transport.ModeDirect
	if *useRPC {
		mode = transport.ModeGeneric
	}
	return ping(ctx, o, cfg, kp, mode, int(n), stdout, stderr)
}

// resolve layers flags over the config file over built-in defaults.
func resolve(o options) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.url != "" {
		cfg.JSONRPCURL = config.NormalizeURL(o.url)
		cfg.WebsocketURL = ""
	}
	if o.ws != "" {
		cfg.WebsocketURL = o.ws
	}
	if o.keypair != "" {
		cfg.KeypairPath = o.keypair
	}
	if o.leader != "" {
		cfg.LeaderAddr = o.leader
	}
	if o.commitment != "" {
		cfg.Commitment = o.commitment
	}
	switch cfg.Commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return cfg, fmt.Errorf("unknown commitment %q", cfg.Commitment)
	}
	return cfg, nil
}

func ping(ctx context.Context, o options, cfg config.Config, kp *signer.Keypair, mode transport.Mode, n int, stdout, stderr io.Writer) int {
	client := rpc.New(rpc.Config{URL: cfg.JSONRPCURL, Timeout: 30 * time.Second})
	m := lifecycle.New()
	if o.monAddr != "" {
		m.Add(monitoring.New(o.monAddr))
	}
	b := bus.New(1024)
	m.Add(report.NewProgress(b))

	if mode == transport.ModeDirect && cfg.LeaderAddr == "" {
		logger.WarnJ("transport_mode", map[string]any{"requested": string(mode), "using": string(transport.ModeGeneric), "reason": "no leader address configured"})
		mode = transport.ModeGeneric
	}
	var tr transport.Transport
	switch mode {
	case transport.ModeDirect:
		d := p2p.NewDirect(p2p.NetConfig{Leader: cfg.LeaderAddr})
		m.Add(p2p.NewNetService(d))
		tr = transport.NewFallback(d, transport.NewRPC(client, transport.RPCConfig{Commitment: cfg.Commitment}))
	default:
		tr = transport.NewRPC(client, transport.RPCConfig{Commitment: cfg.Commitment})
	}

	poller := confirm.NewPoller(client, confirm.PollerConfig{Commitment: cfg.Commitment})
	var tracker confirm.Tracker = poller
	if o.confirmWS {
		wsURL, err := cfg.ResolvedWebsocketURL()
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		tracker = confirm.NewSubscriber(wsURL, cfg.Commitment)
	}
	opts := []sender.Option{sender.WithBus(b), sender.WithChecker(poller)}
	if o.journal != "" {
		j, err := journal.Open(o.journal)
		if err != nil {
			fmt.Fprintf(stderr, "error: open journal: %v\n", err)
			return 1
		}
		defer j.Close()
		opts = append(opts, sender.WithJournal(j))
	}

	if err := m.StartAll(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	logger.InfoJ("ping_start", map[string]any{"count": n, "mode": tr.Name(), "url": cfg.JSONRPCURL, "payer": kp.PublicKey().String()})

	eng := sender.New(tr, tracker, token.NewRPCSource(client, cfg.Commitment), []payload.Signer{kp},
		sender.Config{MaxRounds: o.maxRounds}, opts...)
	rep, runErr := eng.Run(ctx, payload.PingBatch(kp.PublicKey(), n))

	if err := m.StopAll(context.Background()); err != nil {
		logger.WarnJ("shutdown", map[string]any{"err": err})
	}
	if o.webhook != "" {
		report.WebhookSink{URL: o.webhook}.Publish(context.Background(), report.Summarize(rep, runErr))
	}
	if runErr != nil {
		fmt.Fprintf(stderr, "error: send transaction: %v\n", runErr)
		return report.ExitCode(rep, runErr)
	}
	if err := report.Write(stdout, rep); err != nil {
		var be *report.BatchError
		if errors.As(err, &be) {
			fmt.Fprintf(stderr, "error: send transaction: %v\n", err)
		}
	}
	return report.ExitCode(rep, nil)
}

// splitArgs separates the ping subcommand's flags from its positional
// argument so flags may follow the count.
func splitArgs(args []string) (flags, pos []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			pos = append(pos, args[i+1:]...)
			break
		}
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			flags = append(flags, a)
			continue
		}
		pos = append(pos, a)
	}
	return flags, pos
}
