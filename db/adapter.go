package db

import (
	"fmt"

	"github.com/IBigIBruce/MTGA-Backend/config"
	dbmysql "github.com/IBigIBruce/MTGA-Backend/db/mysql"
	dbpostgres "github.com/IBigIBruce/MTGA-Backend/db/postgres"
	dbsqlite "github.com/IBigIBruce/MTGA-Backend/db/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModeMySQL    = "mysql"
	ModePostgres = "postgres"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeMemory:
		return dbsqlite.OpenMemory(uuid.NewString())
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MaxOpen, cfg.MaxIdle, cfg.MaxLife)
	case ModePostgres:
		return dbpostgres.Open(cfg.PostgresDSN, cfg.MaxOpen, cfg.MaxIdle, cfg.MaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
