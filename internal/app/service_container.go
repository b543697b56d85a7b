package app

import (
	"fmt"
	"sync"
	"time"

	"zap-backend/internal/clients"
	"zap-backend/internal/config"
	"zap-backend/internal/db"
	"zap-backend/internal/events"
	"zap-backend/internal/repository"
	"zap-backend/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer wires clients, repositories, and services together once
// at startup. Handlers pull what they need from here.
type ServiceContainer struct {
	DB *gorm.DB

	// Repositories
	DepositRepo repository.DepositRepository

	// Clients
	RegistryClient *clients.RegistryClient
	OneInchClient  *clients.OneInchClient
	ChainClient    *clients.EthChainClient
	NATSClient     *clients.NATSClient

	// Core Services
	QuoteService     *services.QuoteService
	VaultService     *services.VaultService
	PlannerService   *services.VaultPlannerService
	BuilderService   *services.ZapBuilderService
	AllowanceService *services.AllowanceService
	ScannerService   *services.BalanceScannerService
	PipelineService  *services.DepositPipelineService

	// Eventing
	EventPublisher *events.Publisher
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container exactly once.
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		cfg := config.AppConfig
		if cfg == nil {
			initErr = fmt.Errorf("config not loaded")
			return
		}

		container := &ServiceContainer{DB: db.DB}
		container.DepositRepo = repository.NewDepositRepository(container.DB)

		container.RegistryClient = clients.NewRegistryClient(
			cfg.Registry.BaseURL,
			time.Duration(cfg.Registry.Timeout)*time.Second,
		)
		container.OneInchClient = clients.NewOneInchClient(
			cfg.Providers.ZapBaseURL,
			time.Duration(cfg.Providers.Timeout)*time.Second,
		)
		container.ChainClient = clients.NewEthChainClient(cfg)

		// NATS is optional: eventing degrades to logging when it is absent.
		if cfg.NATS.URL != "" {
			nats, err := clients.NewNATSClient(
				cfg.NATS.URL,
				cfg.NATS.SubjectPrefix,
				time.Duration(cfg.NATS.Timeout)*time.Second,
			)
			if err != nil {
				logrus.WithError(err).Warn("NATS unavailable, pipeline events disabled")
			} else {
				container.NATSClient = nats
			}
		}
		container.EventPublisher = events.NewPublisher(container.NATSClient)

		container.QuoteService = services.NewQuoteService(buildProviders(cfg, container.OneInchClient))
		container.VaultService = services.NewVaultService(container.RegistryClient, container.ChainClient)
		container.PlannerService = services.NewVaultPlannerService(container.ChainClient)
		container.BuilderService = services.NewZapBuilderService(cfg, container.QuoteService, container.PlannerService)
		container.AllowanceService = services.NewAllowanceService(cfg, container.ChainClient, container.ChainClient)
		container.ScannerService = services.NewBalanceScannerService(cfg, container.ChainClient)
		container.PipelineService = services.NewDepositPipelineService(
			cfg,
			container.VaultService,
			container.QuoteService,
			container.BuilderService,
			container.AllowanceService,
			container.ChainClient,
			container.DepositRepo,
			container.EventPublisher,
		)

		Container = container
		logrus.WithField("providers", cfg.Providers.Order).Info("service container initialized")
	})

	return Container, initErr
}

// buildProviders instantiates swap providers in the configured order. The
// order doubles as the tie-break order for equal quotes.
func buildProviders(cfg *config.Config, oneInch *clients.OneInchClient) []services.SwapProvider {
	providers := make([]services.SwapProvider, 0, len(cfg.Providers.Order))
	for _, id := range cfg.Providers.Order {
		switch id {
		case "one-inch":
			providers = append(providers, services.NewOneInchProvider(oneInch))
		default:
			logrus.WithField("provider", id).Warn("unknown swap provider in config, skipping")
		}
	}
	return providers
}

// Shutdown releases held connections.
func (c *ServiceContainer) Shutdown() {
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
}
