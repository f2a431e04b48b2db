// Package cli реализует floorplanctl: просмотр планов в базе
// ретранслятора, серверную проекцию раскладки, импорт старого формата
// и безголовый клиент дашборда.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"ha-floorplan/internal/common/config"
	"ha-floorplan/internal/common/logging"
	"ha-floorplan/internal/relay/repository"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// CLI
// ============================================================

const fallbackDBPath = "data/db/floorplan.db"

// Уровни логирования для main.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI - общее состояние команд.
type CLI struct {
	Logger   *log.Logger
	dbPath   string
	defaults defaults
}

// defaults - значения флагов из конфигурации ретранслятора.
type defaults struct {
	dbPath       string
	saveDebounce time.Duration
	resizePolicy string
}

func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: logging.New(w, level), defaults: loadDefaults()}
}

func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand собирает дерево команд.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "floorplanctl",
		Short:        "Inspect floorplans and drive a headless dashboard",
		Long:         `floorplanctl works with the floorplan relay: it lists stored plans, projects widget positions into a container, imports legacy position files and runs a headless dashboard against a live relay.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.dbPath, "db", c.defaults.dbPath, "path to the relay sqlite database")

	root.AddCommand(c.plansCommand())
	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.importLegacyCommand())
	root.AddCommand(c.watchCommand())
	return root
}

// loadDefaults берёт значения из конфигурации ретранслятора, если она читается.
func loadDefaults() defaults {
	d := defaults{
		dbPath:       fallbackDBPath,
		saveDebounce: layout.DefaultSaveDebounce,
		resizePolicy: "freeze",
	}
	cfg, err := config.Load()
	if err != nil {
		return d
	}
	if cfg.Storage.DBPath != "" {
		d.dbPath = cfg.Storage.DBPath
	}
	if v := cfg.SaveDebounce(); v > 0 {
		d.saveDebounce = v
	}
	if cfg.Layout.ResizePolicy != "" {
		d.resizePolicy = cfg.Layout.ResizePolicy
	}
	return d
}

// openRepo открывает базу и применяет миграции. close закрывает её.
func (c *CLI) openRepo(ctx context.Context) (repo *repository.Repository, closeFn func(), err error) {
	db, err := repository.OpenSQLite(c.dbPath)
	if err != nil {
		return nil, nil, err
	}
	repo = repository.New(db)
	if err := repo.Init(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	c.Logger.Debug("database opened", "path", c.dbPath)
	return repo, func() { db.Close() }, nil
}
