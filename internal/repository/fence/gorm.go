package fence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/logger"
)

// slowQueryThreshold marks fence queries worth a log line.
const slowQueryThreshold = 200 * time.Millisecond

// Row is one farm fence as stored by the farm management application.
type Row struct {
	// FarmID is the farm the fence belongs to.
	FarmID string `gorm:"column:farm_id;primaryKey"`
	// Vertices is the polygon stored as a JSON array of {"lat","lng"} objects.
	Vertices []geofence.Point `gorm:"column:vertices;serializer:json"`
	// UpdatedAt is the last edit time.
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the table holding fences.
func (Row) TableName() string {
	return "farm_fences"
}

// gormWriter forwards GORM log lines to the application logger.
type gormWriter struct {
	// ctx carries the named logger.
	ctx context.Context //nolint:containedctx // Only used for logging.
}

// Printf implements gormlogger.Writer.
func (w gormWriter) Printf(format string, args ...any) {
	logger.Debugf(w.ctx, format, args...)
}

// GormSource reads fences from PostgreSQL through GORM.
type GormSource struct {
	// db is the GORM handle.
	db *gorm.DB
}

// OpenGorm connects to PostgreSQL with GORM, logging SQL at debug level.
func OpenGorm(ctx context.Context, dsn string) (*gorm.DB, error) {
	ctx = logger.WithName(ctx, "gorm")

	gormLogger := gormlogger.New(gormWriter{ctx: ctx}, gormlogger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open fence database: %w", err)
	}

	return db, nil
}

// NewGormSource wraps an open GORM handle.
func NewGormSource(db *gorm.DB) *GormSource {
	return &GormSource{db: db}
}

// Migrate creates the fences table if it does not exist.
func (s *GormSource) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Row{}); err != nil {
		return fmt.Errorf("migrate fences: %w", err)
	}

	return nil
}

// GetFence loads the fence of a farm.
func (s *GormSource) GetFence(ctx context.Context, farmID string) (*geofence.Fence, error) {
	var row Row

	err := s.db.WithContext(ctx).Where("farm_id = ?", farmID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil //nolint:nilnil // No fence is a valid answer.
		}

		return nil, fmt.Errorf("select fence: %w", err)
	}

	return &geofence.Fence{
		FarmID:   row.FarmID,
		Vertices: row.Vertices,
	}, nil
}

// PutFence inserts or replaces the fence of a farm.
func (s *GormSource) PutFence(ctx context.Context, f *geofence.Fence) error {
	row := Row{
		FarmID:    f.FarmID,
		Vertices:  f.Vertices,
		UpdatedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save fence: %w", err)
	}

	return nil
}
