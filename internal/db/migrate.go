package db

import (
	"database/sql"
	"log"

	"github.com/Spok95/school-fees-service/internal/db/migrations"
	"github.com/pressly/goose/v3"
)

func Migrate(database *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(database, "."); err != nil {
		log.Println("❌ Ошибка миграции:", err)
		return err
	}
	log.Println("✅ Миграция выполнена успешно.")
	return nil
}
