//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/models"
	"github.com/Spok95/school-fees-service/internal/testutil/testdb"
)

func startDB(t *testing.T) (context.Context, *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)
	return ctx, h.DB
}

func mkSession(t *testing.T, ctx context.Context, database *sql.DB, name string) int64 {
	t.Helper()
	id, err := db.CreateSession(ctx, database, name, time.UTC)
	if err != nil {
		t.Fatalf("создание сессии %s: %v", name, err)
	}
	return id
}

var studentSeq int

func mkStudent(t *testing.T, ctx context.Context, database *sql.DB, sessionID int64, class string) int64 {
	t.Helper()
	studentSeq++
	id, err := db.CreateStudent(ctx, database, models.Student{
		SrNumber:           fmt.Sprintf("SR-%d", studentSeq),
		AccountNumber:      fmt.Sprintf("ACC-%d", studentSeq),
		Name:               fmt.Sprintf("Студент %d", studentSeq),
		CurrentClass:       class,
		AdmissionDate:      time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC),
		AdmissionSessionID: sessionID,
		IsActive:           true,
	})
	if err != nil {
		t.Fatalf("создание студента: %v", err)
	}
	return id
}
