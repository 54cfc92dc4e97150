package db

import (
	"database/sql"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func MustOpen() (*sql.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		panic(err)
	}
	if err := database.Ping(); err != nil {
		panic(err)
	}
	// один активный писатель, пул держим маленьким
	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)
	return database, nil
}
