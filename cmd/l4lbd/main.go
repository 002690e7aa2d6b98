// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Command l4lbd is the user-space control plane entrypoint: it loads a
// proxy configuration, programs the kernel maps a collaborator eBPF/XDP+TC
// data plane reads, and runs the health/circuit/drain/cluster subsystems
// until told to reload or shut down.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cilium/l4lb/internal/accesslog"
	"github.com/cilium/l4lb/internal/adminapi"
	"github.com/cilium/l4lb/internal/bpfmap"
	"github.com/cilium/l4lb/internal/circuit"
	"github.com/cilium/l4lb/internal/cluster"
	"github.com/cilium/l4lb/internal/config"
	"github.com/cilium/l4lb/internal/conntrack"
	"github.com/cilium/l4lb/internal/dnsresolver"
	"github.com/cilium/l4lb/internal/drain"
	"github.com/cilium/l4lb/internal/health"
	"github.com/cilium/l4lb/internal/mapprog"
	"github.com/cilium/l4lb/internal/model"
	"github.com/cilium/l4lb/internal/taskrunner"
	"github.com/cilium/l4lb/internal/wire"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var log = logrus.WithField("subsys", "main")

func main() {
	var configPath string
	var adminAddr string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "l4lbd",
		Short: "Layer-4 load balancer control plane",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Load configuration, program the kernel maps, and serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, adminAddr, verbose)
		},
	}
	startCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/l4lbd/config.yaml", "path to the YAML configuration file")
	startCmd.Flags().StringVar(&adminAddr, "admin-addr", "127.0.0.1:8500", "address the admin HTTP API listens on")
	startCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file without starting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("configuration is valid: %d proxies\n", len(cfg.Proxies))
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/l4lbd/config.yaml", "path to the YAML configuration file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("l4lbd %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		},
	}

	rootCmd.AddCommand(startCmd, validateCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("l4lbd exited with error")
	}
}

func run(configPath, adminAddr string, verbose bool) error {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	viper.SetEnvPrefix("L4LBD")
	viper.AutomaticEnv()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runner := taskrunner.New(ctx)

	app, err := newApp(runner, cfg)
	if err != nil {
		return err
	}
	app.start(runner)

	server := &http.Server{Addr: adminAddr, Handler: app.admin.Router()}
	go func() {
		log.WithField("addr", adminAddr).Info("admin API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("admin API server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	app.shutdown()
	runner.Shutdown(10 * time.Second)
	return nil
}

// app bundles every subsystem instance the running process owns, wired
// per spec §4 and closed in dependency order on shutdown (kernel-map
// handles last, per spec §5).
type app struct {
	cfg        *config.Config
	programmer *mapprog.Programmer
	health     *health.Engine
	circuit    *circuit.Manager
	drain      *drain.Engine
	conntrack  *conntrack.Reader
	dns        *dnsresolver.Resolver
	accesslog  *accesslog.Sink

	membership   *cluster.Membership
	gossiper     *cluster.Gossiper
	transport    *cluster.UDPTransport
	clusterStore *cluster.LocalStore
	proxyOf      map[model.TargetID]string

	admin *adminapi.API
}

func newApp(runner *taskrunner.Runner, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	a.programmer = &mapprog.Programmer{
		Listen:           bpfmap.NewFakeMap[wire.ListenKey, wire.WeightedRoute](),
		LPM:              bpfmap.NewFakeMap[wire.LPMKey, wire.WeightedRoute](),
		SNI:              bpfmap.NewFakeMap[wire.SNIKey, wire.WeightedRoute](),
		RateLimitSource:  bpfmap.NewFakeMap[wire.LPMKey, wire.RateLimitValue](),
		RateLimitBackend: bpfmap.NewFakeMap[wire.BackendKey, wire.RateLimitValue](),
	}

	connTrackMap := bpfmap.NewFakeMap[wire.ConntrackKey, wire.ConntrackValue]()
	reader, err := conntrack.New(connTrackMap, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("build conntrack reader: %w", err)
	}
	a.conntrack = reader

	clock := &cluster.LamportClock{}

	a.circuit = circuit.New(func(id model.TargetID, e circuit.Event, s model.CircuitState) {
		if a.clusterStore != nil {
			a.clusterStore.Touch(a.proxyOf[id], model.StateCircuit, id)
		}
	})
	a.health = health.New(func(proxyName string, id model.TargetID, status model.HealthStatusKind) {
		if a.clusterStore != nil {
			a.clusterStore.Touch(proxyName, model.StateHealth, id)
		}
	})
	a.drain = drain.New(
		func(id model.TargetID) (uint64, error) {
			return a.conntrack.CountForTarget(id)
		},
		func(proxyName string) {
			log.WithField("proxy", proxyName).Debug("weight recomputation triggered")
		},
	)

	if cfg.Settings.StatsEnabled {
		a.accesslog = accesslog.NewStdoutSink()
	}

	a.dns = dnsresolver.New(nil)

	if cfg.Settings.Cluster.Enabled {
		transport, err := cluster.NewUDPTransport(fmt.Sprintf("%s:%d", cfg.Settings.Cluster.BindAddress, cfg.Settings.Cluster.BindPort))
		if err != nil {
			return nil, fmt.Errorf("bind cluster transport: %w", err)
		}
		a.transport = transport

		nodeID := cfg.Settings.Cluster.NodeID
		if nodeID == "" {
			nodeID = cluster.NewNodeID()
		}
		clusterCfg := cluster.Config{
			PingIntervalMs:     int64(cfg.Settings.Cluster.PingIntervalMs),
			PingTimeoutMs:      int64(cfg.Settings.Cluster.PingTimeoutMs),
			PingReqCount:       cfg.Settings.Cluster.PingReqCount,
			SuspicionMult:      cfg.Settings.Cluster.SuspicionMult,
			GossipFanout:       cfg.Settings.Cluster.GossipFanout,
			GossipIntervalMs:   int64(cfg.Settings.Cluster.GossipIntervalMs),
			PushPullIntervalMs: int64(cfg.Settings.Cluster.PushPullIntervalMs),
		}
		a.clusterStore = cluster.NewLocalStore(nodeID, clock, a.health, a.circuit, a.drain)
		selfAddr := fmt.Sprintf("%s:%d", cfg.Settings.Cluster.BindAddress, cfg.Settings.Cluster.BindPort)
		a.membership = cluster.NewMembership(nodeID, selfAddr, clusterCfg, transport, clock, nil)
		a.gossiper = cluster.NewGossiper(nodeID, clusterCfg, transport, a.membership, clock, a.clusterStore)
	}

	a.proxyOf = make(map[model.TargetID]string)
	for _, p := range cfg.Proxies {
		for _, t := range collectTargets(p) {
			id, ok := targetID(t)
			if !ok {
				continue
			}
			a.proxyOf[id] = p.Name
			if t.HealthCheck != nil {
				a.health.Register(runner, p.Name, id, toHealthCheckConfig(*t.HealthCheck), healthProberFor(t))
			}
			a.circuit.Register(id, circuit.Config{Enabled: false})
		}
	}

	a.admin = adminapi.New(a.health, a.circuit, a.drain)
	return a, nil
}

// collectTargets flattens a proxy's default/source-route/SNI-route targets
// into one list; DNS-backed targets (Host set) are resolved by dnsresolver
// and are not part of this static list.
func collectTargets(p config.Proxy) []config.Target {
	var out []config.Target
	if p.DefaultTarget != nil {
		out = append(out, *p.DefaultTarget)
	}
	out = append(out, p.DefaultTargets...)
	for _, sr := range p.SourceRoutes {
		if sr.Target != nil {
			out = append(out, *sr.Target)
		}
		out = append(out, sr.Targets...)
	}
	for _, sni := range p.SniRoutes {
		if sni.Target != nil {
			out = append(out, *sni.Target)
		}
		out = append(out, sni.Targets...)
	}
	return out
}

func targetID(t config.Target) (model.TargetID, bool) {
	if t.IsDNSBacked() {
		return model.TargetID{}, false
	}
	netIP := net.ParseIP(t.IP)
	if netIP == nil {
		return model.TargetID{}, false
	}
	addr, err := model.IPAddrFromNetIP(netIP)
	if err != nil {
		return model.TargetID{}, false
	}
	return model.TargetID{Address: addr, Port: t.Port}, true
}

func toHealthCheckConfig(hc config.HealthCheck) model.HealthCheckConfig {
	return model.HealthCheckConfig{
		Type:               hc.Type,
		Path:               hc.Path,
		Command:            hc.Command,
		IntervalSeconds:    hc.IntervalSeconds,
		TimeoutSeconds:     hc.TimeoutSeconds,
		HealthyThreshold:   hc.HealthyThreshold,
		UnhealthyThreshold: hc.UnhealthyThreshold,
	}
}

func healthProberFor(t config.Target) health.Prober {
	timeout := time.Duration(t.HealthCheck.TimeoutSeconds) * time.Second
	addr := net.JoinHostPort(t.IP, fmt.Sprintf("%d", t.Port))
	switch t.HealthCheck.Type {
	case "http":
		url := fmt.Sprintf("http://%s%s", addr, t.HealthCheck.Path)
		return health.HTTPProber{URL: url, Timeout: timeout}
	case "command":
		return health.CommandProber{Command: t.HealthCheck.Command, Timeout: timeout}
	default:
		return health.TCPProber{Addr: addr, Timeout: timeout}
	}
}

func (a *app) start(runner *taskrunner.Runner) {
	a.drain.StartWatcher(runner, time.Duration(a.cfg.Settings.DrainCheckIntervalMs)*time.Millisecond)
	a.circuit.StartWatcher(runner, time.Second)
	if a.accesslog != nil {
		a.accesslog.Start(runner)
	}
	if a.membership != nil {
		a.membership.StartProber(runner)
		a.gossiper.StartSender(runner)
		runner.Go(func(ctx context.Context) error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case in := <-a.transport.Receive():
					a.membership.HandleInbound(ctx, in)
					a.gossiper.HandleInbound(ctx, in)
				}
			}
		})
	}
}

func (a *app) shutdown() {
	if a.transport != nil {
		_ = a.transport.Close()
	}
	if err := a.programmer.Listen.Close(); err != nil {
		log.WithError(err).Warn("closing listen map")
	}
	if err := a.programmer.LPM.Close(); err != nil {
		log.WithError(err).Warn("closing LPM map")
	}
	if err := a.programmer.SNI.Close(); err != nil {
		log.WithError(err).Warn("closing SNI map")
	}
	if err := a.programmer.RateLimitSource.Close(); err != nil {
		log.WithError(err).Warn("closing source rate-limit map")
	}
	if err := a.programmer.RateLimitBackend.Close(); err != nil {
		log.WithError(err).Warn("closing backend rate-limit map")
	}
	_ = os.Stdout.Sync()
}
