// cmd/hyphagw/serve.go
// Implements the `hyphagw serve` command: the router's single long-running
// process. Wires together the workspace registry, authenticator, router,
// optional cluster coordinator, HTTP proxy, metrics, and the optional gRPC
// control plane, then serves until SIGINT/SIGTERM.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/cluster"
	"github.com/Voskan/hyphagw/internal/config"
	"github.com/Voskan/hyphagw/internal/controlplane"
	"github.com/Voskan/hyphagw/internal/httpgw"
	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/internal/metrics"
	"github.com/Voskan/hyphagw/internal/plugins"
	hyphapb "github.com/Voskan/hyphagw/internal/proto"
	"github.com/Voskan/hyphagw/internal/router"
	"github.com/Voskan/hyphagw/internal/util"
	"github.com/Voskan/hyphagw/internal/workspace"
	"github.com/Voskan/hyphagw/pkg/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hyphagw router (WebSocket + HTTP proxy + optional cluster/control-plane)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("url", "", "Public base URL to bind (mutually exclusive with --port)")
	flags.Int("port", 9527, "TCP port to bind")
	flags.String("jwt-secret", "", "Shared secret enabling JWT verification/minting")
	flags.Bool("clustered", false, "Enable the cluster coordinator over Redis")
	flags.String("server-id", "", "Stable identifier for this router instance (default: random ULID)")
	flags.String("redis-addr", "localhost:6379", "Redis address backing the cluster coordinator")
	flags.Int("method-timeout-s", 60, "Default RPC reply timeout in seconds")
	flags.String("control-plane-addr", "", "If set, bind the gRPC control plane on this host:port")

	_ = v.BindPFlag("url", flags.Lookup("url"))
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("jwt_secret", flags.Lookup("jwt-secret"))
	_ = v.BindPFlag("clustered", flags.Lookup("clustered"))
	_ = v.BindPFlag("server_id", flags.Lookup("server-id"))
	_ = v.BindPFlag("redis_addr", flags.Lookup("redis-addr"))
	_ = v.BindPFlag("method_timeout_s", flags.Lookup("method-timeout-s"))
	_ = v.BindPFlag("control_plane_addr", flags.Lookup("control-plane-addr"))

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if cfg.ServerID == "" {
		cfg.ServerID = util.MustNew()
	}

	metrics.Register()

	spaces := workspace.NewRegistry()
	authn := auth.New(auth.Config{
		JWTSecret: []byte(cfg.JWTSecret),
		Issuer:    "hyphagw",
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var forwarder router.ClusterForwarder
	var coord *cluster.Coordinator
	if cfg.Clustered {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store := cluster.NewRedis(rdb, 3)
		coord = cluster.New(cluster.Config{
			RouterID:          cfg.ServerID,
			Port:              cfg.Port,
			HeartbeatInterval: cfg.HeartbeatInterval(),
			CleanupInterval:   cfg.CleanupInterval(),
			ServerTTL:         cfg.ServerTTL(),
		}, store, spaces)
		forwarder = coord
		spaces.SetPeerRegistrar(coord)
		go coord.Start(ctx)
		go coord.RunCleanup(ctx)
	}

	rtr := router.New(router.Config{
		ManagerID:     cfg.ServerID,
		HyphaVersion:  version.String(),
		MethodTimeout: cfg.MethodTimeout(),
	}, spaces, authn, forwarder, plugins.Members())
	rtr.BootstrapPrecreated()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rtr.ServeWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", httpgw.New(spaces, authn).Routes())

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: mux,
	}

	var grpcSrv *grpc.Server
	if cfg.ControlPlaneAddr != "" {
		grpcSrv = grpc.NewServer()
		hyphapb.RegisterControlServiceServer(grpcSrv, controlplane.New(spaces, rtr))
		ln, err := net.Listen("tcp", cfg.ControlPlaneAddr)
		if err != nil {
			return err
		}
		go func() {
			logging.Sugar().Infow("control plane listening", "addr", ln.Addr().String())
			if err := grpcSrv.Serve(ln); err != nil {
				logging.Sugar().Warnw("control plane stopped", "err", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		logging.Sugar().Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
	}()

	logging.Sugar().Infow("hyphagw listening", "addr", cfg.Addr(), "server_id", cfg.ServerID, "clustered", cfg.Clustered)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Logger().Error("serve failed", zap.Error(err))
		return err
	}
	return nil
}
