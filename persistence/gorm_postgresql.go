// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/trailparty/config"
	"github.com/wfunc/trailparty/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// DSN renders a libpq style connection string.
func DSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(cfg config.PostgresConfig) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second, // 慢SQL阈值
			LogLevel:      logger.Warn, // 日志级别
			Colorful:      false,       // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// NewGormArchive wraps an already opened connection without migrating.
func NewGormArchive(db *gorm.DB) *GormPostgreSQL {
	return &GormPostgreSQL{db: db}
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.GormTurnRecord{})
}

func toModel(rec models.TurnRecord) models.GormTurnRecord {
	m := models.GormTurnRecord{
		RoomID:    rec.RoomID,
		Kind:      rec.Kind,
		Aggregate: rec.Aggregate,
		Narrative: rec.Narrative,
		Delta:     rec.Delta,
		Players:   rec.Players,
	}
	if !rec.CreatedAt.IsZero() {
		m.CreatedAt = rec.CreatedAt
	}
	return m
}

// SaveTurn 保存一回合记录
func (p *GormPostgreSQL) SaveTurn(ctx context.Context, rec models.TurnRecord) error {
	if rec.RoomID == "" {
		return ErrEmptyRoomID
	}
	m := toModel(rec)
	if err := p.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("save turn for room %s: %w", rec.RoomID, err)
	}
	return nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
