// Package di provides dependency injection type definitions.
//
// The Container is the single source of truth for all service instances
// and is passed to the server for access to services.
package di

import (
	"github.com/ravitejakamalapuram/copytradepro/internal/clients/gateway"
	"github.com/ravitejakamalapuram/copytradepro/internal/database"
	"github.com/ravitejakamalapuram/copytradepro/internal/events"
	"github.com/ravitejakamalapuram/copytradepro/internal/handshake"
	"github.com/ravitejakamalapuram/copytradepro/internal/modules/accounts"
	"github.com/ravitejakamalapuram/copytradepro/internal/modules/orders"
	"github.com/ravitejakamalapuram/copytradepro/internal/reliability"
)

// Container holds all dependencies for the application
type Container struct {
	// Databases
	AccountsDB    *database.DB // Linked broker accounts (durable)
	OrdersCacheDB *database.DB // Order history cache (rebuildable from the broker)

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Clients
	Gateway *gateway.Client

	// Handshake
	Handshakes *handshake.Registry

	// Services
	AccountService *accounts.Service
	OrderService   *orders.Service

	// Reliability (CloudBackup is nil when backups are not configured)
	BackupService      *reliability.BackupService
	CloudBackupService *reliability.CloudBackupService
}

// Close releases database connections. Safe to call on a partially
// initialized container.
func (c *Container) Close() {
	if c.AccountsDB != nil {
		c.AccountsDB.Close()
	}
	if c.OrdersCacheDB != nil {
		c.OrdersCacheDB.Close()
	}
}
