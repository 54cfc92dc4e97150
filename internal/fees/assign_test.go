//go:build testutil
// +build testutil

package fees_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/fees"
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

func mkStudent(t *testing.T, ctx context.Context, database *sql.DB, st models.Student) int64 {
	t.Helper()
	id, err := db.CreateStudent(ctx, database, st)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestAssignSessionFees_MonthlyWithTransport(t *testing.T) {
	ctx, database := startDB(t)
	sid, err := db.CreateSession(ctx, database, "2024-25", time.UTC)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.UpsertFeeStructure(ctx, database, sid, "5th", models.FeeMonthly, 500, 0); err != nil {
		t.Fatal(err)
	}
	routeID, err := db.CreateRoute(ctx, database, "Маршрут А")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetRouteClassFee(ctx, database, routeID, "5th", 200); err != nil {
		t.Fatal(err)
	}

	stID := mkStudent(t, ctx, database, models.Student{
		SrNumber: "SR-1", AccountNumber: "ACC-1", Name: "Студент",
		CurrentClass: "5th", AdmissionDate: time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC),
		AdmissionSessionID: sid, HasTransport: true, TransportRouteID: &routeID, IsActive: true,
	})

	eng := fees.NewEngine(database)
	count, total, err := eng.AssignSessionFees(ctx, stID, sid, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("ожидали 2 начисления (обучение + транспорт), получили %d", count)
	}
	// 500×12 за обучение и 200×11 за транспорт (июнь не тарифицируется)
	if total != 8200 {
		t.Fatalf("ожидали 8200, получили %.2f", total)
	}

	entries, err := db.ListEntriesByStudent(ctx, database, stID)
	if err != nil {
		t.Fatal(err)
	}
	ses, _ := db.GetSessionByID(ctx, database, sid)
	for _, e := range entries {
		// дебет датируется началом сессии, а не датой приёма
		if !e.EntryDate.Equal(ses.StartDate) {
			t.Fatalf("дата начисления %v, ожидали %v", e.EntryDate, ses.StartDate)
		}
	}
}

func TestAssignSessionFees_SeniorAnnualPlusRegistration(t *testing.T) {
	ctx, database := startDB(t)
	sid, err := db.CreateSession(ctx, database, "2024-25", time.UTC)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.UpsertFeeStructure(ctx, database, sid, "9th", models.FeeAnnual, 20000, 0); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertFeeStructure(ctx, database, sid, "9th", models.FeeRegistration, 1500, 0); err != nil {
		t.Fatal(err)
	}

	stID := mkStudent(t, ctx, database, models.Student{
		SrNumber: "SR-2", AccountNumber: "ACC-2", Name: "Старшеклассник",
		CurrentClass: "9th", AdmissionDate: time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC),
		AdmissionSessionID: sid, IsActive: true,
	})

	eng := fees.NewEngine(database)
	count, total, err := eng.AssignSessionFees(ctx, stID, sid, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 || total != 21500 {
		t.Fatalf("ожидали 2 начисления на 21500 (год + регистрация), получили %d на %.2f", count, total)
	}

	entries, err := db.ListEntriesByStudent(ctx, database, stID)
	if err != nil {
		t.Fatal(err)
	}
	refs := map[models.ReferenceType]bool{}
	for _, e := range entries {
		refs[e.ReferenceType] = true
	}
	if !refs[models.RefFeeCharge] || !refs[models.RefRegistrationFee] {
		t.Fatalf("ожидали FEE_CHARGE и REGISTRATION_FEE, получили %v", refs)
	}
}

func TestAssignSessionFees_NoStructureIsNoop(t *testing.T) {
	ctx, database := startDB(t)
	sid, err := db.CreateSession(ctx, database, "2024-25", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	stID := mkStudent(t, ctx, database, models.Student{
		SrNumber: "SR-3", AccountNumber: "ACC-3", Name: "Без платы",
		CurrentClass: "NC", AdmissionDate: time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC),
		AdmissionSessionID: sid, IsActive: true,
	})

	eng := fees.NewEngine(database)
	count, total, err := eng.AssignSessionFees(ctx, stID, sid, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 || total != 0 {
		t.Fatalf("без fee structure начислений быть не должно: %d на %.2f", count, total)
	}
}

func TestAssignOpeningBalance_NonPositiveIsNoop(t *testing.T) {
	ctx, database := startDB(t)
	sid, err := db.CreateSession(ctx, database, "2024-25", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	stID := mkStudent(t, ctx, database, models.Student{
		SrNumber: "SR-4", AccountNumber: "ACC-4", Name: "С авансом",
		CurrentClass: "3rd", AdmissionDate: time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC),
		AdmissionSessionID: sid, IsActive: true,
	})

	eng := fees.NewEngine(database)
	for _, amount := range []float64{0, -1200} {
		added, err := eng.AssignOpeningBalance(ctx, stID, sid, amount, time.Now().UTC(), "перенос")
		if err != nil {
			t.Fatal(err)
		}
		if added {
			t.Fatalf("аванс %.2f не должен переноситься", amount)
		}
	}

	added, err := eng.AssignOpeningBalance(ctx, stID, sid, 3000, time.Now().UTC(), "перенос")
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Fatal("положительный долг должен переноситься")
	}
	bal, err := db.CurrentBalance(ctx, database, stID)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 3000 {
		t.Fatalf("баланс после переноса: ожидали 3000, получили %.2f", bal)
	}
}

func TestAssignAdmissionFee_UsesAllClassesStructure(t *testing.T) {
	ctx, database := startDB(t)
	sid, err := db.CreateSession(ctx, database, "2024-25", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	stID := mkStudent(t, ctx, database, models.Student{
		SrNumber: "SR-5", AccountNumber: "ACC-5", Name: "Новичок",
		CurrentClass: "1st", AdmissionDate: time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
		AdmissionSessionID: sid, IsActive: true,
	})

	eng := fees.NewEngine(database)
	// структуры ADMISSION ещё нет — тихий no-op
	added, err := eng.AssignAdmissionFee(ctx, stID, sid, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Fatal("без структуры ADMISSION сбор не начисляется")
	}

	if err := db.UpsertFeeStructure(ctx, database, sid, models.AllClasses, models.FeeAdmission, 5000, 0); err != nil {
		t.Fatal(err)
	}
	added, err = eng.AssignAdmissionFee(ctx, stID, sid, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Fatal("ожидали начисление вступительного взноса")
	}
	bal, err := db.CurrentBalance(ctx, database, stID)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 5000 {
		t.Fatalf("ожидали баланс 5000, получили %.2f", bal)
	}
}
