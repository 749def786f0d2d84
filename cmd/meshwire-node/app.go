package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Treystu/SCMessenger-sub006/pkg/config"
	"github.com/Treystu/SCMessenger-sub006/pkg/identity"
	"github.com/Treystu/SCMessenger-sub006/pkg/memkv"
	"github.com/Treystu/SCMessenger-sub006/pkg/mesh"
	"github.com/Treystu/SCMessenger-sub006/pkg/netstack"
	"github.com/Treystu/SCMessenger-sub006/pkg/observability"
	"github.com/Treystu/SCMessenger-sub006/pkg/outbox"
	"github.com/Treystu/SCMessenger-sub006/pkg/peers"
	"github.com/Treystu/SCMessenger-sub006/pkg/protocol"
	"github.com/Treystu/SCMessenger-sub006/pkg/transport"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("meshwire-node started", zap.String("app", cfg.AppName))
	zap.L().Info("effective configuration", zap.Any("config", cfg))

	// Load/generate node identity (ed25519)
	priv, canonicalID, err := identity.LoadOrGenEd25519(cfg.Identity)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to init identity: " + err.Error() + "\n")
		return 1
	}
	if cfg.NodeID == "" {
		cfg.NodeID = string(canonicalID)
		zap.L().Info("derived node_id from identity", zap.String("node_id", cfg.NodeID))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := memkv.New(memkv.Options{})
	defer kv.Close()
	box := outbox.New(kv)
	directory := peers.NewDirectory(kv)

	mgr := transport.NewManager()

	// Engine and netstack reference each other: the stack is the engine's
	// Network, the engine is the stack's inbound Handler.
	var stack *netstack.Stack
	engine := mesh.NewEngine(cfg.Engine,
		mesh.NetworkFunc(func(ctx context.Context, peer transport.PeerID, env protocol.Envelope) (protocol.Envelope, error) {
			return stack.Request(ctx, peer, env)
		}),
		mesh.WithStorage(box),
		mesh.WithMessageHandler(func(from transport.PeerID, payload []byte) {
			zap.L().Info("inbound message",
				zap.String("from", string(from)),
				zap.Int("bytes", len(payload)))
		}),
	)
	stack = netstack.NewStack(mgr, peers.Observe(directory, engine), transport.PeerID(cfg.NodeID), cfg.AppName)
	stack.UseIdentity(priv)

	closer, bindAddr, err := netstack.StartFromConfig(ctx, cfg.Transports, stack, netstack.OptionsFromConfig(cfg.Net))
	if err != nil {
		zap.L().Error("failed to start transports", zap.Error(err))
		return 1
	}
	defer closer()
	if bindAddr != "" {
		mesh.WithLocalBindAddr(bindAddr)(engine)
	}
	engine.Start()
	defer func() { _ = engine.Shutdown(context.Background()) }()

	zap.L().Info("node is running; press Ctrl+C to exit")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	zap.L().Info("shutting down")
	return 0
}
