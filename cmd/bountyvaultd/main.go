package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bountyvault/config"
	"bountyvault/core/state"
	"bountyvault/native/escrow"
	"bountyvault/native/program"
	"bountyvault/observability/logging"
	"bountyvault/rpc"
	"bountyvault/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.Setup("bountyvaultd", cfg.Environment)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open database", "path", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)

	escrowEngine := escrow.NewEngine()
	escrowEngine.SetState(manager)
	programEngine := program.NewEngine()
	programEngine.SetState(manager)

	// Bootstrap host-level settings before any invocation is accepted.
	whitelisted, err := bootstrapState(cfg, manager, escrowEngine)
	if err != nil {
		logger.Error("bootstrap state", "err", err)
		os.Exit(1)
	}

	logger.Info("settlement engines ready",
		"dataDir", cfg.DataDir,
		"whitelisted", whitelisted,
	)

	if cfg.RPCAddress != "" {
		server := rpc.NewServer(escrowEngine, programEngine)
		go func() {
			if err := http.ListenAndServe(cfg.RPCAddress, server.Router()); err != nil {
				logger.Error("query listener stopped", "err", err)
			}
		}()
		logger.Info("query listener started", "address", cfg.RPCAddress)
	}

	if cfg.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				logger.Error("metrics listener stopped", "err", err)
			}
		}()
		logger.Info("metrics listener started", "address", cfg.MetricsAddress)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")
}

// bootstrapState seeds the host-level settings and, when the configuration
// names both an admin and a token contract, initialises the escrow instance.
// It is safe to run on every start: an already initialised instance is left
// untouched. Returns the number of whitelisted addresses.
func bootstrapState(cfg *config.Config, manager *state.Manager, engine *escrow.Engine) (int, error) {
	if err := manager.AbuseConfigSet(cfg.AbuseConfig()); err != nil {
		return 0, fmt.Errorf("store anti-abuse config: %w", err)
	}
	whitelist, err := cfg.WhitelistAddresses()
	if err != nil {
		return 0, fmt.Errorf("parse whitelist: %w", err)
	}
	for _, addr := range whitelist {
		if err := manager.SetWhitelisted(addr, true); err != nil {
			return 0, fmt.Errorf("store whitelist entry: %w", err)
		}
	}

	hasAdmin := strings.TrimSpace(cfg.AdminAddress) != ""
	hasToken := strings.TrimSpace(cfg.TokenAddress) != ""
	if hasAdmin != hasToken {
		return 0, fmt.Errorf("AdminAddress and TokenAddress must be configured together")
	}
	if hasAdmin {
		if _, initialized, err := manager.AdminGet(); err != nil {
			return 0, fmt.Errorf("read admin: %w", err)
		} else if !initialized {
			admin, err := cfg.Admin()
			if err != nil {
				return 0, fmt.Errorf("parse admin address: %w", err)
			}
			token, err := cfg.Token()
			if err != nil {
				return 0, fmt.Errorf("parse token address: %w", err)
			}
			if err := engine.Init(admin, token); err != nil {
				return 0, fmt.Errorf("initialise escrow: %w", err)
			}
		}
	}

	if err := manager.Commit(); err != nil {
		return 0, fmt.Errorf("commit bootstrap state: %w", err)
	}
	return len(whitelist), nil
}
