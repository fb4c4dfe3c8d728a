// internal/service/payment/infrastructure/mysql.go
package infrastructure

import (
	"atlas/internal/service/payment/domain"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB 建立支付库连接并迁移表结构。
func NewDB(dsn string) (*gorm.DB, error) {
	if _, err := mysqldrv.ParseDSN(dsn); err != nil {
		return nil, errors.Wrap(err, "invalid mysql dsn")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&domain.Payment{}); err != nil {
		return nil, err
	}
	return db, nil
}
