// internal/service/inventory/infrastructure/mysql.go
package infrastructure

import (
	"atlas/internal/service/inventory/domain"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB 建立库存库连接并迁移三张表。
// TranslateError 让唯一键冲突以 gorm.ErrDuplicatedKey 的形式出现。
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
	if err := db.AutoMigrate(&domain.Inventory{}, &domain.Reservation{}, &domain.StockMovement{}); err != nil {
		return nil, err
	}
	return db, nil
}
