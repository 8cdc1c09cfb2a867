package database

import (
	"fmt"
	"time"

	"github.com/reusedev/shot-hub/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDatabase(config config.Database) {
	db, err := Open(config)
	if err != nil {
		panic(err)
	}
	DB = db
}

func Dialector(config config.Database) (gorm.Dialector, error) {
	switch config.Driver {
	case "mysql":
		return mysql.Open(config.DSN), nil
	case "postgres":
		return postgres.Open(config.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver: %q", config.Driver)
}

func Open(config config.Database) (*gorm.DB, error) {
	dialector, err := Dialector(config)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	return db, nil
}
