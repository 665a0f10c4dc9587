package discordhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var (
	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
	sqliteExecPragma      = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
	dbOperationTimeout = 30 * time.Second
)

// ModelUintID is an embeddable model with an auto-incrementing primary key.
type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// InteractionLog records one dispatched interaction: who invoked what,
// how it was routed, and the full payload for later inspection.
type InteractionLog struct {
	ModelUintID
	InteractionID string `json:"interaction_id" gorm:"index"`
	Type          string `json:"type" gorm:"type:string"`
	UserID        string `json:"user_id" gorm:"type:string"`
	Username      string `json:"username" gorm:"type:string"`
	AppID         string `json:"application_id" gorm:"type:string"`
	GuildID       string `json:"guild_id" gorm:"type:string"`
	ChannelID     string `json:"channel_id" gorm:"type:string"`

	// Route is the resolved target: a command path, a component or
	// modal custom ID, or "" when routing failed.
	Route string `json:"route" gorm:"type:string"`

	// Outcome is one of "ok", "check_failed", "error", "not_found".
	Outcome string `json:"outcome" gorm:"type:string"`

	Payload string `json:"payload" gorm:"type:string"`

	// LatencyMS is how long the interaction took from receipt to reply,
	// in milliseconds.
	LatencyMS int64 `json:"latency_ms" gorm:"column:latency_ms"`

	CreatedAt int64 `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
}

func newInteractionLog(
	i *discordgo.InteractionCreate,
	route string,
	outcome string,
	latency time.Duration,
) (*InteractionLog, error) {
	payload, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("error marshaling interaction: %w", err)
	}
	rec := &InteractionLog{
		InteractionID: i.ID,
		Type:          i.Type.String(),
		AppID:         i.AppID,
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		Route:         route,
		Outcome:       outcome,
		Payload:       string(payload),
		LatencyMS:     latency.Milliseconds(),
	}
	if u := interactionUser(i); u != nil {
		rec.UserID = u.ID
		rec.Username = u.Username
	}
	return rec, nil
}

// BotUser caches the application's own user, refreshed each startup so
// the status endpoint has something to report even before Discord is
// reachable.
type BotUser struct {
	ModelUintID
	UserID        string `json:"user_id" gorm:"index"`
	Username      string `json:"username" gorm:"type:string"`
	Discriminator string `json:"discriminator" gorm:"type:string"`
	LastSeen      int64  `gorm:"autoUpdateTime:milli" json:"last_seen,omitempty"`
}

// database wraps the gorm connection used for interaction logging. It is
// nil on clients with storage disabled; callers check before use.
type database struct {
	db     *gorm.DB
	logger *slog.Logger
}

// openDatabase opens (and migrates) the interaction log per the storage
// config. SQLite connections are pinned to a single conn with WAL enabled
// so concurrent request handlers don't trip over database locks.
func openDatabase(
	ctx context.Context,
	config *StorageConfig,
	logger *slog.Logger,
) (*database, error) {
	level := slog.LevelVar{}
	if config.LogLevel != nil {
		level.Set(config.LogLevel.Level())
	} else {
		level.Set(DefaultStorageLogLevel)
	}
	handler := tint.NewHandler(
		os.Stdout, &tint.Options{
			Level:     &level,
			AddSource: true,
		},
	)
	gormLogger := newGORMLogger(handler, config.SlowThreshold)

	db, err := getDB(config.Type, config.DSN, gormLogger)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if config.Type == dbTypeSQLite {
		sqlDB, e := db.DB()
		if e != nil {
			return nil, e
		}
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
		for _, pragma := range sqliteExecPragma {
			if e = db.WithContext(ctx).Exec(pragma).Error; e != nil {
				return nil, fmt.Errorf("error executing %q: %w", pragma, e)
			}
		}
	}

	if err = db.WithContext(ctx).AutoMigrate(
		&InteractionLog{},
		&BotUser{},
	); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return &database{
		db:     db,
		logger: logger.With(loggerNameKey, "database"),
	}, nil
}

// getDB initializes a GORM connection for the given database type.
func getDB(
	databaseType string,
	dsn string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(dsn)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(
			sqlite.Open(dsn),
			&gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	case dbTypePostgres:
		return gorm.Open(
			postgres.Open(dsn), &gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}

// recordInteraction persists one interaction log entry. Failures are
// logged, not returned: logging must never affect the interaction reply.
func (d *database) recordInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	route string,
	outcome string,
	latency time.Duration,
) {
	rec, err := newInteractionLog(i, route, outcome, latency)
	if err != nil {
		d.logger.ErrorContext(
			ctx,
			"error creating interaction log",
			tint.Err(err),
		)
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()
	if err = d.db.WithContext(opCtx).Create(rec).Error; err != nil {
		d.logger.ErrorContext(
			ctx,
			"error saving interaction log",
			tint.Err(err),
		)
	}
}

// saveBotUser upserts the bot's own user record, keyed by user ID.
func (d *database) saveBotUser(
	ctx context.Context,
	user *discordgo.User,
) error {
	opCtx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	var existing BotUser
	err := d.db.WithContext(opCtx).Where(
		"user_id = ?",
		user.ID,
	).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec := BotUser{
			UserID:        user.ID,
			Username:      user.Username,
			Discriminator: user.Discriminator,
		}
		return d.db.WithContext(opCtx).Create(&rec).Error
	case err != nil:
		return err
	default:
		existing.Username = user.Username
		existing.Discriminator = user.Discriminator
		return d.db.WithContext(opCtx).Save(&existing).Error
	}
}

// close releases the underlying sql connection pool.
func (d *database) close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
