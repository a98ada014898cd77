package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/capability"
	"github.com/XiandaDu/WatAIOliver/internal/config"
	"github.com/XiandaDu/WatAIOliver/internal/critic"
	"github.com/XiandaDu/WatAIOliver/internal/drafter"
	"github.com/XiandaDu/WatAIOliver/internal/engine"
	"github.com/XiandaDu/WatAIOliver/internal/moderator"
	"github.com/XiandaDu/WatAIOliver/internal/reporter"
	"github.com/XiandaDu/WatAIOliver/internal/retriever"
	"github.com/XiandaDu/WatAIOliver/internal/server"
	"github.com/XiandaDu/WatAIOliver/internal/store"
	"github.com/XiandaDu/WatAIOliver/internal/tutor"
)

// #region main

func main() {
	configPath := flag.String("config", "", "path to yaml config (optional)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logrus.NewEntry(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	eng, cleanup, err := buildEngine(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// Idle sessions are evicted on a fraction of their TTL so a session is
	// never held much past its deadline.
	if cfg.Deliberation.SessionTTL > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Deliberation.SessionTTL / 4)
			defer ticker.Stop()
			for range ticker.C {
				eng.EvictIdle(cfg.Deliberation.SessionTTL)
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(eng, capability.AllowAllScopes{}, log)
	log.WithField("addr", cfg.Server.Addr).Info("oliver listening")
	if err := srv.Router().Run(cfg.Server.Addr); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

// #endregion main

// #region wiring

// buildEngine assembles the capability clients, retry decorators, agents,
// and audit store into a ready engine.
func buildEngine(cfg config.Config, log *logrus.Entry) (*engine.Engine, func(), error) {
	client := capability.NewClient(cfg.Capabilities.SearchURL, cfg.Capabilities.GenerateURL, log)
	policy := capability.RetryPolicy{
		MaxRetries:  cfg.Capabilities.RetryCount,
		BaseBackoff: cfg.Capabilities.RetryBase,
		CallTimeout: cfg.Capabilities.CallTimeout,
	}
	search := capability.WithSearchRetry(client, policy, log)
	gen := capability.WithGenerateRetry(client, policy, log)

	deps := engine.Deps{
		Retriever: retriever.New(search, gen, cfg.Deliberation.ReframeCount, log),
		Drafter:   drafter.New(gen, log),
		Critic: critic.New(gen, critic.Thresholds{
			Accept: cfg.Deliberation.AcceptThreshold,
			Reject: cfg.Deliberation.RejectThreshold,
		}, log),
		Moderator: moderator.New(cfg.Deliberation),
		Reporter:  reporter.New(log),
		Tutor:     tutor.New(log),
	}

	cleanup := func() {}
	if cfg.Store.Path != "" {
		audit, err := store.NewStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit store: %w", err)
		}
		deps.Audit = audit
		cleanup = func() { audit.Close() }
	} else {
		log.Warn("audit store disabled, turns are in-memory only")
	}

	return engine.New(cfg.Deliberation, deps, log), cleanup, nil
}

// #endregion wiring
