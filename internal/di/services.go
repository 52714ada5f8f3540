package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/clients/gateway"
	"github.com/ravitejakamalapuram/copytradepro/internal/config"
	"github.com/ravitejakamalapuram/copytradepro/internal/database"
	"github.com/ravitejakamalapuram/copytradepro/internal/events"
	"github.com/ravitejakamalapuram/copytradepro/internal/handshake"
	"github.com/ravitejakamalapuram/copytradepro/internal/modules/accounts"
	"github.com/ravitejakamalapuram/copytradepro/internal/modules/orders"
	"github.com/ravitejakamalapuram/copytradepro/internal/reliability"
	"github.com/ravitejakamalapuram/copytradepro/internal/retry"
)

// InitializeServices wires clients, the handshake registry and the
// business services into the container. Databases must already be
// initialized.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	// Event bus first; everything downstream publishes through it.
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.Gateway = gateway.New(cfg.GatewayBaseURL, log)

	// Staged handshake context lives in the cache database so it
	// survives a restart.
	staging, err := handshake.NewPersistentStaging(container.OrdersCacheDB)
	if err != nil {
		return fmt.Errorf("failed to initialize handshake staging: %w", err)
	}

	// Auth popups are opened by the dashboard, so the registry gets a
	// remote opener that announces the auth URL over the event stream.
	opener := handshake.NewRemoteOpener(container.EventManager)
	container.Handshakes = handshake.NewRegistry(
		opener,
		staging,
		container.EventManager,
		handshake.Options{
			PollInterval:     cfg.Handshake.PollInterval,
			CrossOriginAfter: cfg.Handshake.CrossOriginAfter,
			OverallTimeout:   cfg.Handshake.OverallTimeout,
		},
		cfg.PublicOrigin,
		log,
	)

	accountRepo := accounts.NewRepository(container.AccountsDB, log)
	container.AccountService = accounts.NewService(
		accountRepo,
		container.Gateway,
		container.Handshakes,
		container.EventManager,
		log,
	)

	orderRepo := orders.NewRepository(container.OrdersCacheDB, log)
	container.OrderService = orders.NewService(
		orderRepo,
		container.Gateway,
		container.AccountService,
		container.EventManager,
		retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		log,
	)

	container.BackupService = reliability.NewBackupService(
		map[string]*database.DB{
			"accounts":     container.AccountsDB,
			"orders_cache": container.OrdersCacheDB,
		},
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "backups"),
		log,
	)

	if cfg.Backup != nil {
		store, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to initialize backup store: %w", err)
		}
		container.CloudBackupService = reliability.NewCloudBackupService(
			store,
			container.BackupService,
			container.EventManager,
			cfg.DataDir,
			log,
		)
	}

	log.Info().Msg("Services initialized")
	return nil
}
