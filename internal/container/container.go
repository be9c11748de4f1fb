package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"goboot/adapters/excel"
	"goboot/adapters/memory"
	"goboot/adapters/postgres"
	"goboot/adapters/remote"
	"goboot/adapters/rng"
	"goboot/app"
	"goboot/internal"
	"goboot/internal/bootstrap"
	"goboot/internal/config"
	"goboot/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB *sqlx.DB

	// Adapters (data access and ingestion)
	Ledger ports.RunLedgerPort
	Reader ports.DatasetReaderPort
	RNG    ports.RNGPort

	// Core components
	Engine  *bootstrap.Engine
	Service *app.BootstrapService

	logger *internal.Logger
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Container{
		Config: cfg,
		logger: internal.DefaultLogger,
	}, nil
}

// InitWithDatabase wires the Postgres run ledger and every component
// above it.
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	// Test database connection
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.DB = db
	c.Ledger = postgres.NewRunLedger(db)

	if err := c.initComponents(); err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	c.logger.Info("Container initialized with Postgres run ledger")
	return nil
}

// InitInMemory wires the in-process run ledger for deployments without
// a DATABASE_URL. Stored runs do not survive a restart.
func (c *Container) InitInMemory() error {
	c.Ledger = memory.NewRunLedger()

	if err := c.initComponents(); err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	c.logger.Warn("No database configured, runs are held in memory only")
	return nil
}

// initComponents initializes the adapters and the orchestration layer
func (c *Container) initComponents() error {
	c.RNG = rng.New()

	// Sources may be workbook/csv paths or http(s) URLs serving JSON.
	c.Reader = remote.NewReader(excel.NewReader(c.logger), remote.Options{
		DataPath:  c.Config.Data.JSONPath,
		AuthToken: c.Config.Data.AuthToken,
		PageParam: c.Config.Data.PageParam,
		MaxPages:  c.Config.Data.MaxPages,
	}, c.logger)

	c.Engine = bootstrap.NewEngine(c.RNG)

	c.Service = app.NewBootstrapService(c.Engine, c.Ledger, c.Reader, c.Config)
	if c.Service == nil {
		return fmt.Errorf("failed to create bootstrap service")
	}
	return nil
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
