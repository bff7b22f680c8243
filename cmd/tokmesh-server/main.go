// Package main provides the entry point for tokmesh-server.
//
// tokmesh-server is the per-node process of a tokmesh cluster: it serves
// RESP on the client port, gossips and replicates over the cluster-bus
// port, and exposes the ClusterAdmin RPC surface the CLI talks to.
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tokmesh/cluster/internal/clusterconfig"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
	"github.com/tokmesh/cluster/internal/executor"
	"github.com/tokmesh/cluster/internal/heartbeat"
	"github.com/tokmesh/cluster/internal/infra/shutdown"
	"github.com/tokmesh/cluster/internal/promotion"
	"github.com/tokmesh/cluster/internal/pubsub"
	"github.com/tokmesh/cluster/internal/router"
	"github.com/tokmesh/cluster/internal/server/adminserver"
	"github.com/tokmesh/cluster/internal/server/busserver"
	"github.com/tokmesh/cluster/internal/server/respserver"
	"github.com/tokmesh/cluster/internal/storage/aof"
	"github.com/tokmesh/cluster/internal/storage/metafile"
	"github.com/tokmesh/cluster/internal/storage/rdb"
	"github.com/tokmesh/cluster/internal/telemetry/logger"
	"github.com/tokmesh/cluster/internal/telemetry/metric"
	"github.com/tokmesh/cluster/pkg/crypto/adaptive"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to node configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("tokmesh-server %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return nil
	}
	if *configFile == "" {
		return fmt.Errorf("missing required --config flag")
	}

	cfg, err := clusterconfig.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: "info", Format: "json", Output: os.Stdout})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	slogLog := slog.Default()

	log.Info("starting tokmesh-server", "version", version, "commit", commit, "config", *configFile)

	cipher, err := buildCipher(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("build cipher: %w", err)
	}

	node, err := bootstrapNode(cfg, cipher, log)
	if err != nil {
		return fmt.Errorf("bootstrap node: %w", err)
	}

	if err := recoverFromRDB(cfg, cipher, node); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	var users *clusterconfig.Users
	if cfg.UsersFile != "" {
		if _, statErr := os.Stat(cfg.UsersFile); statErr == nil {
			users, err = clusterconfig.LoadUsers(cfg.UsersFile)
			if err != nil {
				return fmt.Errorf("load users file: %w", err)
			}
		}
	}

	broker := pubsub.New(func(s clusterid.Slot) bool {
		return node.Storage.SlotRange().Contains(s)
	})

	metrics := metric.NewRegistry()
	metrics.RegisterNodeCollector(node)

	// busserver needs the router; the router, the heartbeat coordinator
	// and the promotion manager all need a Sender, which busserver itself
	// provides. Build those three with a nil Sender, build busserver
	// against the router, then hand busserver to each via SetSender.
	hb := heartbeat.New(node, nil, nil, slogLog)
	hb.SetMetrics(metrics)
	promo := promotion.New(node, nil, slogLog)
	hb.SetFailObserver(promo)

	rt := router.New(node, hb, promo, broker, nil, slogLog, 0)

	bus := busserver.New(fmt.Sprintf("%s:%d", cfg.ClusterIP, cfg.ClusterPort()), cipher, node, rt, nil, log)
	bus.SetMetrics(metrics)
	hb.SetSender(bus)
	hb.SetDiscoverer(bus)
	promo.SetSender(bus)
	rt.SetSender(bus)

	exec := executor.New(node, users, broker, bus)
	bus.SetExecutor(exec)

	if err := openAOF(cfg, cipher, node); err != nil {
		return fmt.Errorf("open aof: %w", err)
	}
	if node.AOF != nil {
		node.AOF.SetMetrics(metrics)
	}
	defer func() {
		if node.AOF != nil {
			node.AOF.Close()
		}
	}()
	if err := replayAOF(cfg, cipher, exec); err != nil {
		return fmt.Errorf("replay aof: %w", err)
	}

	respSrv := respserver.New(fmt.Sprintf("%s:%d", cfg.IP, cfg.Port), cipher, node, exec, broker, log)
	adminSrv := adminserver.New(fmt.Sprintf("%s:%d", cfg.IP, cfg.Port+20000), node, bus, log)
	adminSrv.Handle("/metrics", metrics.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go rt.Run(ctx)
	go hb.RunPingLoop(ctx)
	go hb.RunPongAuditLoop(ctx)
	if cfg.StorageFile != "" && cfg.Save > 0 {
		snapMgr := rdb.NewManager(cfg.StorageFile, cipher)
		snapMgr.SetMetrics(metrics)
		go runSnapshotLoop(ctx, snapMgr, node, time.Duration(cfg.Save)*time.Millisecond, log)
	}

	errCh := make(chan error, 3)
	go func() { errCh <- bus.ListenAndServe(ctx) }()
	go func() { errCh <- respSrv.ListenAndServe(ctx) }()
	go func() { errCh <- adminSrv.ListenAndServe(ctx) }()

	sh := shutdown.NewHandler(10 * time.Second)
	sh.OnShutdown(func(ctx context.Context) error { return adminSrv.Shutdown(ctx) })
	sh.OnShutdown(func(ctx context.Context) error { return respSrv.Shutdown(ctx) })
	sh.OnShutdown(func(ctx context.Context) error { return bus.Shutdown(ctx) })
	sh.OnShutdown(func(ctx context.Context) error { cancel(); return nil })

	log.Info("server started",
		"node_id", node.Self.ID.String(),
		"client_addr", node.Self.ClientAddr,
		"cluster_addr", node.Self.ClusterAddr)

	go func() {
		for err := range errCh {
			if err != nil {
				log.Error("listener exited", "error", err)
			}
		}
	}()

	if err := sh.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

func buildCipher(key string) (adaptive.Cipher, error) {
	if key == "" {
		return nil, nil
	}
	sum := sha256.Sum256([]byte(key))
	return adaptive.New(sum[:])
}

// bootstrapNode determines this process's NodeId and role, preferring the
// metadata file written by a prior run, falling back to node_id_seed, and
// finally to a fresh random id, then constructs the Node.
func bootstrapNode(cfg *clusterconfig.Config, cipher adaptive.Cipher, log logger.Logger) (*clusternode.Node, error) {
	mgr := metafile.NewManager(cfg.MetadataFile)

	var id clusterid.NodeId
	role := neighbor.RoleMaster
	if cfg.ReplicaOf != "" {
		role = neighbor.RoleReplica
	}

	if mgr.Exists() {
		meta, err := mgr.Read()
		if err != nil {
			return nil, fmt.Errorf("read metadata file: %w", err)
		}
		id = meta.NodeID
		role = meta.Role
		log.Info("restored identity from metadata file", "node_id", id.String())
	} else if cfg.NodeIDSeed != "" {
		id = clusterid.FromSeed(cfg.NodeIDSeed)
	} else {
		var err error
		id, err = clusterid.New()
		if err != nil {
			return nil, fmt.Errorf("generate node id: %w", err)
		}
	}

	self := clusternode.Self{
		ID:          id,
		ClientAddr:  fmt.Sprintf("%s:%d", cfg.IP, cfg.Port),
		ClusterAddr: fmt.Sprintf("%s:%d", cfg.ClusterIP, cfg.ClusterPort()),
		PublicAddr:  cfg.PublicAddress,
		NodeTimeout: cfg.NodeTimeout,
		MaxClients:  cfg.MaxClients,
	}
	slots := clusterid.Range{Start: cfg.SlotRangeStart, End: cfg.SlotRangeEnd}
	node := clusternode.New(self, cfg.InitialMasterCount, role, slots)

	meta := &metafile.Metadata{
		NodeID:       id,
		Role:         role,
		Status:       metafile.StatusOK,
		Slots:        slots,
		SaveInterval: cfg.Save,
		MaxClients:   cfg.MaxClients,
		LoggerPath:   cfg.LogFile,
		NodeTimeout:  cfg.NodeTimeout,
		ClusterAddr:  self.ClusterAddr,
		PublicAddr:   self.PublicAddr,
	}
	if err := mgr.Write(meta); err != nil {
		return nil, fmt.Errorf("write metadata file: %w", err)
	}

	return node, nil
}

// runSnapshotLoop wakes every interval and writes a full RDB snapshot,
// truncating the AOF afterward so replay on the next restart only has to
// cover commands since the last snapshot.
func runSnapshotLoop(ctx context.Context, mgr *rdb.Manager, node *clusternode.Node, interval time.Duration, log logger.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := mgr.Create(node.Storage); err != nil {
				log.Error("snapshot failed", "error", err)
				continue
			}
			if node.AOF != nil {
				if err := node.AOF.Truncate(); err != nil {
					log.Error("aof truncate after snapshot failed", "error", err)
				}
			}
		}
	}
}

func recoverFromRDB(cfg *clusterconfig.Config, cipher adaptive.Cipher, node *clusternode.Node) error {
	if cfg.StorageFile == "" {
		return nil
	}
	if _, err := os.Stat(cfg.StorageFile); err != nil {
		return nil
	}
	mgr := rdb.NewManager(cfg.StorageFile, cipher)
	slots, entries, err := mgr.Load()
	if err != nil {
		return err
	}
	node.Storage.SetSlotRange(slots)
	for _, e := range entries {
		if err := node.Storage.Set(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func openAOF(cfg *clusterconfig.Config, cipher adaptive.Cipher, node *clusternode.Node) error {
	if !cfg.AppendOnly || cfg.AOFFile == "" {
		return nil
	}
	log, err := aof.Open(cfg.AOFFile, cipher)
	if err != nil {
		return err
	}
	node.AOF = log
	return nil
}

// replayAOF reapplies every command recorded in the append-only file
// directly against storage via exec.ExecuteReplica, which applies a mutable
// command's handler without re-appending to the AOF or fanning out to
// replicas, same as an ordinary replicated command arriving from a master.
func replayAOF(cfg *clusterconfig.Config, cipher adaptive.Cipher, exec *executor.Executor) error {
	if !cfg.AppendOnly || cfg.AOFFile == "" {
		return nil
	}
	if _, err := os.Stat(cfg.AOFFile); err != nil {
		return nil
	}
	return aof.Replay(cfg.AOFFile, cipher, executor.DataIndexLookup(), exec.ExecuteReplica)
}
