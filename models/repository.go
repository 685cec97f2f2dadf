package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("record not found")

// Repository owns the database handle shared by the services.
type Repository struct {
	db *gorm.DB
}

// NewPostgresRepository connects to postgres and migrates the schema.
func NewPostgresRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewRepository(db)
}

// NewRepository wraps an open connection and migrates the schema.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return &Repository{db: db}, nil
}

// GormConfig returns the settings used for every connection.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(&log.Logger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

func AllModels() []any {
	return []any{
		&Tenant{}, &User{}, &Sequence{},
		&Client{}, &Contact{},
		&Project{}, &Phase{}, &Set{}, &Requirement{},
		&Pitch{}, &Lead{},
		&Note{}, &Comment{}, &Document{},
		&AuditEntry{},
	}
}

// DB returns a session bound to ctx.
func (r *Repository) DB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// Transaction runs fn inside a database transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InTenant restricts a query to one tenant.
func InTenant(tenantID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// FindOne loads a tenant owned record by primary key.
func FindOne[T any](db *gorm.DB, tenantID, id uint) (*T, error) {
	var rec T
	if err := db.Scopes(InTenant(tenantID)).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// LockOne is FindOne with a FOR UPDATE row lock held until tx ends.
func LockOne[T any](tx *gorm.DB, tenantID, id uint) (*T, error) {
	return FindOne[T](tx.Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, id)
}

// LockTenant serializes writers that reorder rows spread over the whole
// tenant, such as the lead pipeline. SQLite has no row locks and drops the
// clause.
func LockTenant(tx *gorm.DB, tenantID uint) error {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&Tenant{}, tenantID).Error
}

// Exists reports whether a live record of type T with id belongs to the tenant.
func Exists[T any](db *gorm.DB, tenantID, id uint) (bool, error) {
	var n int64
	err := db.Model(new(T)).Scopes(InTenant(tenantID)).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// Count returns the number of live T rows matching the condition.
func Count[T any](db *gorm.DB, tenantID uint, query string, args ...any) (int64, error) {
	var n int64
	err := db.Model(new(T)).Scopes(InTenant(tenantID)).Where(query, args...).Count(&n).Error
	return n, err
}
