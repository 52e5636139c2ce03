package bootstrap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/code-100-precent/LingVoice/internal/models"
	"github.com/code-100-precent/LingVoice/pkg/config"
	"github.com/code-100-precent/LingVoice/pkg/logger"
	"github.com/code-100-precent/LingVoice/pkg/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	InitSQLPath string // optional .sql file run after migrations
	AutoMigrate bool
	SeedNonProd bool // demo data outside production
}

// SetupDatabase connects, migrates and seeds. nil opts only connects.
func SetupDatabase(w io.Writer, opts *Options) (*gorm.DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	db, err := initDBConn(w)
	if err != nil {
		return nil, err
	}
	if opts.AutoMigrate {
		if err := RunMigrations(db); err != nil {
			closeDB(db)
			return nil, err
		}
	}
	if opts.InitSQLPath != "" {
		if err := RunInitSQL(db, opts.InitSQLPath); err != nil {
			closeDB(db)
			return nil, err
		}
	}
	if opts.SeedNonProd && !isProduction() {
		if err := (&SeedService{db: db}).SeedAll(); err != nil {
			closeDB(db)
			return nil, fmt.Errorf("seed database: %w", err)
		}
	}
	return db, nil
}

func initDBConn(w io.Writer) (*gorm.DB, error) {
	cfg := config.GlobalConfig
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	db, err := utils.InitDatabase(w, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Database.Driver, err)
	}
	// mysql/postgres 连接是惰性的
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("ping %s database: %w", cfg.Database.Driver, err)
	}
	return db, nil
}

func RunMigrations(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// RunInitSQL executes a plain SQL file. Lines starting with -- or # are
// comments, statements end with ';' and the last one may omit it.
func RunInitSQL(db *gorm.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open init sql: %w", err)
	}
	defer f.Close()

	var stmt strings.Builder
	exec := func() error {
		sql := strings.TrimSpace(stmt.String())
		stmt.Reset()
		if sql == "" {
			return nil
		}
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(sql), err)
		}
		return nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") || strings.HasPrefix(line, "#") {
			continue
		}
		stmt.WriteString(line)
		stmt.WriteString("\n")
		if strings.HasSuffix(line, ";") {
			if err := exec(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read init sql: %w", err)
	}
	if err := exec(); err != nil {
		return err
	}
	logger.Info("init sql executed", zap.String("path", path))
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func isProduction() bool {
	if os.Getenv("APP_ENV") == "production" {
		return true
	}
	return config.GlobalConfig != nil && config.GlobalConfig.IsProduction()
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
