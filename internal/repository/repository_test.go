package repository

import (
	"database/sql"
	"regexp"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	sqlDB  *sql.DB
	gormDB *gorm.DB
	mock   sqlmock.Sqlmock
)

func setUp() {
	sqlDB, mock, _ = sqlmock.New()
	gormDB, _ = gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

func tearDown() {
	sqlDB.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}
