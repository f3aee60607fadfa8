package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"xdao.co/aincraft/adapter"
	"xdao.co/aincraft/config"
	"xdao.co/aincraft/keys"
	"xdao.co/aincraft/node"
	"xdao.co/aincraft/storage/storeconfig"
	"xdao.co/aincraft/storage/storeregistry"
	"xdao.co/aincraft/transport/grpcface"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("aincraft-node", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "JSON config file")
	listen := fs.String("listen", "", "listen address (overrides config)")
	seedHex := fs.String("seed-hex", "", "32-byte root seed as hex; random when empty")
	certOut := fs.String("cert-out", "", "write this node's base64 certificate to a file")
	bundleIn := fs.String("bundle-in", "", "import a packet bundle at startup")
	bundleOut := fs.String("bundle-out", "", "export a packet bundle at shutdown")
	logLevel := fs.String("log-level", "", "log level (overrides config)")
	listBackends := fs.Bool("list-backends", false, "List supported store backends and exit")
	store := fs.String("store", "", "store backend (overrides config storage)")
	var peers, trusted, storeOpts stringList
	fs.Var(&storeOpts, "store-opt", "store backend setting key=value (repeatable)")
	fs.Var(&peers, "peer", "peer address to dial (repeatable)")
	fs.Var(&trusted, "trust", "file holding a base64 peer certificate (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range storeregistry.List(storeregistry.UsageNode) {
			_, _ = fmt.Fprintf(out, "%s\t%s", b.Name, b.Description)
			if len(b.Settings) > 0 {
				_, _ = fmt.Fprintf(out, " [%s]", strings.Join(b.Settings, ", "))
			}
			_, _ = fmt.Fprintln(out)
		}
		return 0
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	cfg.Peers = append(cfg.Peers, peers...)
	if *store != "" {
		settings := map[string]string{}
		for _, kv := range storeOpts {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				fmt.Fprintf(errOut, "invalid -store-opt %q, want key=value\n", kv)
				return 2
			}
			settings[k] = v
		}
		cfg.Storage = storeconfig.Single(*store, settings)
	}
	for _, path := range trusted {
		b, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
		cfg.TrustedCerts = append(cfg.TrustedCerts, strings.TrimSpace(string(b)))
	}
	level, err := cfg.Level()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: errOut, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	opts := options{seedHex: *seedHex, certOut: *certOut, bundleIn: *bundleIn, bundleOut: *bundleOut}
	if err := serve(ctx, cfg, opts, log); err != nil {
		log.Error().Err(err).Msg("node failed")
		return 1
	}
	return 0
}

type options struct {
	seedHex   string
	certOut   string
	bundleIn  string
	bundleOut string
}

func serve(ctx context.Context, cfg config.Config, opts options, log zerolog.Logger) error {
	face := grpcface.New(log)
	face.Timeout = cfg.RPCTimeout.Std()
	defer face.Close()

	var (
		n   *node.Node
		err error
	)
	if opts.seedHex != "" {
		seed, perr := keys.ParseSeedHex(opts.seedHex)
		if perr != nil {
			return perr
		}
		n, err = node.NewWithSeed(cfg, seed, face, log)
	} else {
		n, err = node.New(cfg, face, log)
	}
	if err != nil {
		return err
	}
	defer n.Close()

	if opts.certOut != "" {
		if err := os.WriteFile(opts.certOut, []byte(n.Trust.ExportSelfCertificateBase64()+"\n"), 0o644); err != nil {
			return err
		}
	}
	if opts.bundleIn != "" {
		if err := importBundle(n, opts.bundleIn); err != nil {
			return err
		}
	}
	if opts.bundleOut != "" {
		defer func() {
			if err := exportBundle(n, opts.bundleOut); err != nil {
				log.Error().Err(err).Str("path", opts.bundleOut).Msg("bundle export failed")
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	s := grpc.NewServer()
	grpcface.RegisterFaceServer(s, face.Server())
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(lis) }()
	defer s.GracefulStop()

	for _, p := range cfg.Peers {
		if err := face.Dial(p, grpcface.DialOptions{Timeout: cfg.RPCTimeout.Std()}); err != nil {
			return err
		}
	}

	go logEvents(n, log)
	if err := n.Start(ctx); err != nil {
		return err
	}
	log.Info().
		Str("listen", lis.Addr().String()).
		Strs("peers", face.Peers()).
		Str("peer_id", n.PeerID).
		Msg("aincraft-node listening")

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func importBundle(n *node.Node, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = n.ImportBundle(f)
	return err
}

func exportBundle(n *node.Node, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := n.ExportBundle(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func logEvents(n *node.Node, log zerolog.Logger) {
	for ev := range n.Adapter.Events() {
		switch ev.Kind {
		case adapter.EventReady:
			log.Info().Msg("ready")
		case adapter.EventPeerCandidate:
			log.Info().Str("peer_id", ev.PeerID).Str("origin", ev.Origin.String()).Msg("peer candidate")
		case adapter.EventMessage:
			log.Info().
				Str("origin", ev.Origin.String()).
				Uint64("seq", ev.Seq).
				Str("type", ev.Message.Type).
				Str("sender", ev.Message.SenderID).
				Int("bytes", len(ev.Message.Data)).
				Msg("message")
		case adapter.EventRejected:
			log.Warn().Err(ev.Err).Str("origin", ev.Origin.String()).Uint64("seq", ev.Seq).Msg("rejected")
		}
	}
}
