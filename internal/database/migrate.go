package database

import (
	"github.com/xpanvictor/voxgate/internal/repository/clip"
	"gorm.io/gorm"
)

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&clip.ClipEntity{},
	)
}
