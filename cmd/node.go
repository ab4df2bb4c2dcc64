package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"chainkv/config"
	"chainkv/exception"
	"chainkv/logx"
	"chainkv/monitoring"
	"chainkv/node"
	"chainkv/p2p"
)

const (
	tunablesPath = "config/config.ini"
)

var (
	nodeConfigPath string
	nodeName       string
	listenAddr     string
	bootstrapAddrs []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the key-value node",
	Run: func(cmd *cobra.Command, args []string) {
		runNode()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&nodeConfigPath, "config", "c", "", "Path to node.yml")
	runCmd.Flags().StringVarP(&nodeName, "name", "n", "", "Node name (defaults to a generated id)")
	runCmd.Flags().StringVar(&listenAddr, "listen", config.DefaultListenAddr, "libp2p listen multiaddr")
	runCmd.Flags().StringSliceVar(&bootstrapAddrs, "bootstrap", nil, "Bootstrap peer multiaddrs")
}

func runNode() {
	monitoring.InitMetrics()

	name := nodeName
	listen := listenAddr
	metricsAddr := config.DefaultMetricsAddr
	bootstrap := bootstrapAddrs

	if nodeConfigPath != "" {
		cfg, err := config.LoadGenesisConfig(nodeConfigPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		if cfg.SelfNode.Name != "" {
			name = cfg.SelfNode.Name
		}
		if cfg.SelfNode.ListenAddr != "" {
			listen = cfg.SelfNode.ListenAddr
		}
		if cfg.SelfNode.MetricsAddr != "" {
			metricsAddr = cfg.SelfNode.MetricsAddr
		}
		for _, p := range cfg.PeerNodes {
			bootstrap = append(bootstrap, p.Addr)
		}
	}
	if name == "" {
		name = uuid.NewString()
	}

	gossipCfg := config.DefaultGossipConfig()
	readCfg := config.DefaultReadConfig()
	if _, err := os.Stat(tunablesPath); err == nil {
		if cfg, err := config.LoadGossipConfig(tunablesPath); err == nil {
			gossipCfg = cfg
		}
		if cfg, err := config.LoadReadConfig(tunablesPath); err == nil {
			readCfg = cfg
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := p2p.NewTransport(ctx, name, listen, bootstrap, gossipCfg.RequestTimeout())
	if err != nil {
		log.Fatalf("Failed to initialize transport: %v", err)
	}

	n := node.New(name, transport, gossipCfg, readCfg, clockwork.NewRealClock())
	n.Start()

	exception.SafeGo("metrics-server", func() {
		mux := http.NewServeMux()
		monitoring.RegisterMetrics(mux)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logx.Error("CMD", "Metrics server stopped: ", err)
		}
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logx.Info("CMD", "Shutting down")
	n.Stop()
}
