package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/albert-vybestein/neobank/adapters/chain"
	"github.com/albert-vybestein/neobank/adapters/deployer"
	"github.com/albert-vybestein/neobank/adapters/events"
	"github.com/albert-vybestein/neobank/adapters/identity"
	"github.com/albert-vybestein/neobank/adapters/signature"
	"github.com/albert-vybestein/neobank/adapters/store"
	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/internal/config"
	"github.com/albert-vybestein/neobank/internal/obs"
	"github.com/albert-vybestein/neobank/internal/ratelimit"
	"github.com/albert-vybestein/neobank/ports"
	"github.com/albert-vybestein/neobank/service"
	transport "github.com/albert-vybestein/neobank/transport/http"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := obs.NewLogger(cfg.Production, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var redisClient *redis.Client
	if cfg.RedisURL != "" && (cfg.StoreBackend == "redis" || cfg.EventsEnabled) {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	recordStore, err := newRecordStore(cfg, redisClient)
	if err != nil {
		return err
	}

	var publisher ports.EventPublisher = events.NopPublisher{}
	if cfg.EventsEnabled {
		streams, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			return fmt.Errorf("failed to create redis publisher: %w", err)
		}
		wp := events.NewWatermillPublisher(streams)
		defer wp.Close()
		publisher = wp
	}

	opts := service.Options{
		Store:        recordStore,
		Mode:         cfg.DeployMode,
		Deployer:     deployer.NewMockDeployer(),
		Events:       publisher,
		Metrics:      obs.NewMetrics(),
		Logger:       logger,
		ChallengeTTL: cfg.ChallengeTTL,
		SessionTTL:   cfg.SessionTTL,
	}

	if cfg.DeployMode == core.DeployModeReal {
		safeClient, eth, err := chain.Dial(ctx, cfg.RPCURL, cfg.ChainID)
		if err != nil {
			return err
		}
		defer eth.Close()
		opts.Chain = safeClient

		opts.Deployer, err = newDeployer(cfg, eth, logger)
		if err != nil {
			return err
		}
	}
	opts.Verifier = signature.NewVerifier(opts.Chain, logger.Named("signature"))

	if cfg.PrivyEnabled() {
		privy, err := identity.NewPrivyClient(identity.PrivyConfig{
			AppID:           cfg.PrivyAppID,
			AppSecret:       cfg.PrivyAppSecret,
			VerificationKey: cfg.PrivyVerificationKey,
			APIURL:          cfg.PrivyAPIURL,
		}, nil, logger.Named("privy"))
		if err != nil {
			return err
		}
		opts.Identity = privy
	}

	authService := service.NewAuthService(opts)
	router := transport.SetupRouter(transport.RouterConfig{
		AuthService: authService,
		Limiter:     ratelimit.New(),
		Metrics:     opts.Metrics,
		Logger:      logger,
		Production:  cfg.Production,
		SiteURL:     cfg.SiteURL,
	})

	logger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("mode", string(cfg.DeployMode)),
		zap.String("strategy", string(cfg.DeployStrategy)),
		zap.String("store", cfg.StoreBackend),
		zap.Bool("privy", cfg.PrivyEnabled()))

	return serve(ctx, fmt.Sprintf(":%d", cfg.Port), router)
}

func newRecordStore(cfg config.Config, redisClient *redis.Client) (ports.RecordStore, error) {
	if cfg.StoreBackend == "redis" {
		return store.NewRedisStore(redisClient), nil
	}
	return store.NewFileStore(cfg.DataDir)
}

func newDeployer(cfg config.Config, eth *ethclient.Client, logger *zap.Logger) (ports.Deployer, error) {
	switch cfg.DeployStrategy {
	case core.DeployStrategyRelay:
		key, err := crypto.HexToECDSA(cfg.RelayerPrivateKey)
		if err != nil {
			return nil, errors.New("invalid SAFE_RELAYER_PRIVATE_KEY")
		}
		contracts, err := relayContracts(cfg)
		if err != nil {
			return nil, err
		}
		contracts.ChainID = big.NewInt(cfg.ChainID)
		contracts.RelayerKey = key
		return deployer.NewRelayDeployer(eth, contracts, logger.Named("relay"))
	case core.DeployStrategyERC4337:
		return deployer.ClientDeployer{}, nil
	default:
		return deployer.NewMockDeployer(), nil
	}
}

// relayContracts parses optional contract overrides; zero addresses fall back to the canonical deployments
func relayContracts(cfg config.Config) (deployer.RelayConfig, error) {
	var out deployer.RelayConfig
	for _, c := range []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"SAFE_PROXY_FACTORY", cfg.ProxyFactory, &out.ProxyFactory},
		{"SAFE_SINGLETON", cfg.Singleton, &out.Singleton},
		{"SAFE_FALLBACK_HANDLER", cfg.FallbackHandler, &out.FallbackHandler},
	} {
		if c.raw == "" {
			continue
		}
		if !common.IsHexAddress(c.raw) {
			return deployer.RelayConfig{}, fmt.Errorf("invalid %s", c.name)
		}
		*c.dst = common.HexToAddress(c.raw)
	}
	return out, nil
}

// serve runs the HTTP server until ctx is done, then drains it
func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
