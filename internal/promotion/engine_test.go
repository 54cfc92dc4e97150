//go:build testutil
// +build testutil

package promotion_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/errs"
	"github.com/Spok95/school-fees-service/internal/models"
	"github.com/Spok95/school-fees-service/internal/promotion"
	"github.com/Spok95/school-fees-service/internal/testutil/testdb"
	"go.uber.org/zap"
)

type fixture struct {
	ctx      context.Context
	db       *sql.DB
	src, dst int64
}

func startDB(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)

	f := &fixture{ctx: ctx, db: h.DB}
	f.src, err = db.CreateSession(ctx, h.DB, "2024-25", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	f.dst, err = db.CreateSession(ctx, h.DB, "2025-26", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetCurrentSession(ctx, h.DB, f.src); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) student(t *testing.T, sr, class string) int64 {
	t.Helper()
	id, err := db.CreateStudent(f.ctx, f.db, models.Student{
		SrNumber: sr, AccountNumber: "ACC-" + sr, Name: "Студент " + sr,
		CurrentClass: class, AdmissionDate: time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC),
		AdmissionSessionID: f.src, IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (f *fixture) entry(t *testing.T, studentID, sessionID int64, typ models.EntryType, ref models.ReferenceType, amount float64) {
	t.Helper()
	if _, err := db.AddLedgerEntry(f.ctx, f.db, models.LedgerEntry{
		StudentID: studentID, SessionID: sessionID,
		Type: typ, ReferenceType: ref, Amount: amount,
		EntryDate: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) fee(t *testing.T, sessionID int64, class string, ft models.FeeType, amount float64) {
	t.Helper()
	if err := db.UpsertFeeStructure(f.ctx, f.db, sessionID, class, ft, amount, 0); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) class(t *testing.T, studentID int64) (string, bool) {
	t.Helper()
	st, err := db.GetStudentByID(f.ctx, f.db, studentID)
	if err != nil {
		t.Fatal(err)
	}
	return st.CurrentClass, st.IsActive
}

// drain дочитывает канал прогресса и дожидается финального результата.
func drain(t *testing.T, e *promotion.Engine, ch <-chan promotion.Progress) *promotion.Result {
	t.Helper()
	for range ch {
	}
	state, _, res := e.Status()
	if res == nil {
		t.Fatalf("после закрытия канала результат должен быть готов, state=%s", state)
	}
	return res
}

func allOptions() promotion.Options {
	return promotion.Options{
		CopyFeeStructures:      true,
		CarryForwardDues:       true,
		PromoteClasses:         true,
		Deactivate12thStudents: true,
		AddTuitionFees:         true,
		AddTransportFees:       true,
		SetAsCurrent:           true,
	}
}

func TestPreview_CountsDuesOnlyWhenPositive(t *testing.T) {
	f := startDB(t)
	debtor := f.student(t, "P1", "5th")
	prepaid := f.student(t, "P2", "11th")
	f.student(t, "P3", "12th")

	f.entry(t, debtor, f.src, models.Debit, models.RefFeeCharge, 1000)
	// аванс: кредит без дебета, долгом не считается
	f.entry(t, prepaid, f.src, models.Credit, models.RefPayment, 500)

	f.fee(t, f.src, "5th", models.FeeMonthly, 500)

	eng := promotion.NewEngine(f.db, zap.NewNop())
	prev, err := eng.Preview(f.ctx, f.src, f.dst)
	if err != nil {
		t.Fatal(err)
	}
	if prev.TotalStudents != 3 {
		t.Fatalf("ожидали 3 студентов, получили %d", prev.TotalStudents)
	}
	if prev.StudentsIn12th != 1 {
		t.Fatalf("ожидали одного 12-классника, получили %d", prev.StudentsIn12th)
	}
	if prev.StudentsWithDues != 1 || prev.TotalDuesAmount != 1000 {
		t.Fatalf("долги: ожидали 1 студента на 1000, получили %d на %.2f",
			prev.StudentsWithDues, prev.TotalDuesAmount)
	}
	if prev.FeeStructuresCount != 1 {
		t.Fatalf("ожидали 1 fee structure, получили %d", prev.FeeStructuresCount)
	}
	if prev.ClassWiseCounts["5th"] != 1 || prev.ClassWiseCounts["11th"] != 1 {
		t.Fatalf("неверная разбивка по классам: %v", prev.ClassWiseCounts)
	}
}

func TestExecute_FullRollover(t *testing.T) {
	f := startDB(t)
	junior := f.student(t, "E1", "5th")  // должник
	middle := f.student(t, "E2", "11th") // станет 12th
	senior := f.student(t, "E3", "12th") // выпускается

	f.entry(t, junior, f.src, models.Debit, models.RefFeeCharge, 1000)

	f.fee(t, f.src, "5th", models.FeeMonthly, 500)
	f.fee(t, f.src, "6th", models.FeeMonthly, 600)
	f.fee(t, f.src, "12th", models.FeeAnnual, 25000)
	f.fee(t, f.src, "12th", models.FeeRegistration, 2000)

	eng := promotion.NewEngine(f.db, zap.NewNop())
	ch, err := eng.Execute(f.ctx, f.src, f.dst, allOptions())
	if err != nil {
		t.Fatal(err)
	}
	res := drain(t, eng, ch)

	if !res.Success {
		t.Fatalf("rollover упал: %s", res.ErrorMessage)
	}
	if res.FeeStructuresCopied != 4 {
		t.Fatalf("ожидали 4 скопированные структуры, получили %d", res.FeeStructuresCopied)
	}
	if res.StudentsPromoted != 2 || res.StudentsDeactivated != 1 {
		t.Fatalf("перевод: promoted=%d deactivated=%d", res.StudentsPromoted, res.StudentsDeactivated)
	}
	if res.StudentsWithDuesCarried != 1 || res.DuesCarriedForward != 1000 {
		t.Fatalf("перенос долгов: %d на %.2f", res.StudentsWithDuesCarried, res.DuesCarriedForward)
	}
	// 6th: 600×12 = 7200; новый 12th: 25000 + 2000 = 27000
	if res.TotalFeesAdded != 34200 {
		t.Fatalf("начислено: ожидали 34200, получили %.2f", res.TotalFeesAdded)
	}

	if c, active := f.class(t, junior); c != "6th" || !active {
		t.Fatalf("должник: ожидали активного в 6th, получили %s/%v", c, active)
	}
	if c, active := f.class(t, middle); c != "12th" || !active {
		t.Fatalf("11-классник: ожидали активного в 12th, получили %s/%v", c, active)
	}
	if c, active := f.class(t, senior); c != "12th" || active {
		t.Fatalf("выпускник должен быть деактивирован в 12th, получили %s/%v", c, active)
	}

	cur, err := db.GetCurrentSession(f.ctx, f.db)
	if err != nil {
		t.Fatal(err)
	}
	if cur.ID != f.dst {
		t.Fatalf("текущей должна стать целевая сессия, получили %d", cur.ID)
	}

	// старый дебет 1000 + перенос 1000 + новые начисления 7200
	bal, err := db.CurrentBalance(f.ctx, f.db, junior)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 9200 {
		t.Fatalf("баланс должника: ожидали 9200, получили %.2f", bal)
	}

	state, _, _ := eng.Status()
	if state != promotion.StateCompleted {
		t.Fatalf("ожидали состояние COMPLETED, получили %s", state)
	}
}

func TestExecute_RejectsSameSessionAndEmptyOptions(t *testing.T) {
	f := startDB(t)
	eng := promotion.NewEngine(f.db, zap.NewNop())

	if _, err := eng.Execute(f.ctx, f.src, f.src, allOptions()); !errs.IsValidation(err) {
		t.Fatalf("одинаковые сессии должны давать ошибку валидации: %v", err)
	}

	opts := promotion.Options{}
	ch, err := eng.Execute(f.ctx, f.src, f.dst, opts)
	if err != nil {
		t.Fatal(err)
	}
	res := drain(t, eng, ch)
	if res.Success {
		t.Fatal("прогон без единой фазы должен падать")
	}
	state, _, _ := eng.Status()
	if state != promotion.StateFailed {
		t.Fatalf("ожидали FAILED, получили %s", state)
	}
}

func TestExecute_PromoteOnlyKeepsTerminalSeniors(t *testing.T) {
	f := startDB(t)
	nursery := f.student(t, "S1", "NC")
	junior := f.student(t, "S2", "5th")
	senior := f.student(t, "S3", "12th")

	eng := promotion.NewEngine(f.db, zap.NewNop())
	ch, err := eng.Execute(f.ctx, f.src, f.dst, promotion.Options{PromoteClasses: true})
	if err != nil {
		t.Fatal(err)
	}
	res := drain(t, eng, ch)
	if !res.Success {
		t.Fatalf("rollover упал: %s", res.ErrorMessage)
	}
	if res.StudentsPromoted != 2 || res.StudentsDeactivated != 0 {
		t.Fatalf("перевод без выпуска: promoted=%d deactivated=%d", res.StudentsPromoted, res.StudentsDeactivated)
	}
	if c, active := f.class(t, nursery); c != "LKG" || !active {
		t.Fatalf("ожидали LKG/active, получили %s/%v", c, active)
	}
	if c, active := f.class(t, junior); c != "6th" || !active {
		t.Fatalf("ожидали 6th/active, получили %s/%v", c, active)
	}
	// без деактивации 12-классник остаётся терминальным и активным
	if c, active := f.class(t, senior); c != "12th" || !active {
		t.Fatalf("ожидали терминального 12th/active, получили %s/%v", c, active)
	}

	// тот же прогон с выпуском деактивирует ровно 12-классников
	ch, err = eng.Execute(f.ctx, f.src, f.dst, promotion.Options{
		PromoteClasses:         true,
		Deactivate12thStudents: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	res = drain(t, eng, ch)
	if !res.Success {
		t.Fatalf("второй прогон упал: %s", res.ErrorMessage)
	}
	if res.StudentsDeactivated != 1 {
		t.Fatalf("ожидали 1 выпущенного, получили %d", res.StudentsDeactivated)
	}
	if c, active := f.class(t, senior); c != "12th" || active {
		t.Fatalf("выпускник должен быть деактивирован в 12th, получили %s/%v", c, active)
	}
}

func TestExecute_PartialRunRecordsOnlyPhasesRan(t *testing.T) {
	f := startDB(t)
	debtor := f.student(t, "X1", "5th")
	rider := f.student(t, "X2", "7th")
	f.entry(t, debtor, f.src, models.Debit, models.RefFeeCharge, 1000)

	// тариф маршрута есть только для 7th: после перевода в 8th
	// начисление транспорта упадёт на поиске тарифа
	routeID, err := db.CreateRoute(f.ctx, f.db, "Маршрут Восток")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetRouteClassFee(f.ctx, f.db, routeID, "7th", 300); err != nil {
		t.Fatal(err)
	}
	if _, err := db.EnrollTransport(f.ctx, f.db, rider, routeID,
		time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}

	eng := promotion.NewEngine(f.db, zap.NewNop())
	ch, err := eng.Execute(f.ctx, f.src, f.dst, promotion.Options{
		CarryForwardDues: true,
		PromoteClasses:   true,
		AddTransportFees: true,
		SetAsCurrent:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	res := drain(t, eng, ch)
	if res.Success {
		t.Fatal("прогон должен падать на начислении транспорта")
	}

	// audit фиксирует стартовавшие фазы; до смены сессии прогон не дошёл
	p, err := db.GetPromotionByID(f.ctx, f.db, res.PromotionID)
	if err != nil {
		t.Fatal(err)
	}
	if !p.CarriedForwardDues || !p.PromotedClasses || !p.AddedTransportFees {
		t.Fatalf("стартовавшие фазы должны быть зафиксированы: %+v", p)
	}
	if p.CopiedFeeStructures || p.AddedTuitionFees || p.SetAsCurrent {
		t.Fatalf("невыполненные фазы не должны попадать в audit: %+v", p)
	}
	cur, err := db.GetCurrentSession(f.ctx, f.db)
	if err != nil {
		t.Fatal(err)
	}
	if cur.ID != f.src {
		t.Fatalf("текущая сессия не должна была смениться, получили %d", cur.ID)
	}

	// откат частичного прогона возвращает состав и журнал
	rev := promotion.NewRevertEngine(f.db, zap.NewNop())
	rres, err := rev.Execute(f.ctx, res.PromotionID, false, "откат частичного прогона")
	if err != nil {
		t.Fatal(err)
	}
	if !rres.Success {
		t.Fatalf("откат упал: %s", rres.ErrorMessage)
	}
	if rres.ClassesReverted != 2 {
		t.Fatalf("ожидали 2 понижения, получили %d", rres.ClassesReverted)
	}
	if c, active := f.class(t, debtor); c != "5th" || !active {
		t.Fatalf("должник: ожидали 5th/active, получили %s/%v", c, active)
	}
	if c, active := f.class(t, rider); c != "7th" || !active {
		t.Fatalf("транспортник: ожидали 7th/active, получили %s/%v", c, active)
	}
	bal, err := db.CurrentBalance(f.ctx, f.db, debtor)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 1000 {
		t.Fatalf("перенесённый долг должен быть удалён, баланс %.2f", bal)
	}
}

func TestRevert_DemotesOnlyRecordedCount(t *testing.T) {
	f := startDB(t)
	first := f.student(t, "D1", "6th") // единственный переведённый до падения
	second := f.student(t, "D2", "6th")
	third := f.student(t, "D3", "7th")

	id, err := db.InsertPromotion(f.ctx, f.db, models.SessionPromotion{
		SourceSessionID:  f.src,
		TargetSessionID:  f.dst,
		PromotedClasses:  true,
		StudentsPromoted: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	rev := promotion.NewRevertEngine(f.db, zap.NewNop())
	rres, err := rev.Execute(f.ctx, id, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if !rres.Success || rres.ClassesReverted != 1 {
		t.Fatalf("ожидали ровно одно понижение, получили %d (success=%v)", rres.ClassesReverted, rres.Success)
	}
	if c, _ := f.class(t, first); c != "5th" {
		t.Fatalf("первый по id должен быть понижен до 5th, получили %s", c)
	}
	if c, _ := f.class(t, second); c != "6th" {
		t.Fatalf("второй не переводился и понижаться не должен, получили %s", c)
	}
	if c, _ := f.class(t, third); c != "7th" {
		t.Fatalf("третий не переводился и понижаться не должен, получили %s", c)
	}

	// нулевые счётчики — фаза ничего не меняла, откат её пропускает
	id2, err := db.InsertPromotion(f.ctx, f.db, models.SessionPromotion{
		SourceSessionID: f.src,
		TargetSessionID: f.dst,
		PromotedClasses: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	rres, err = rev.Execute(f.ctx, id2, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if rres.ClassesReverted != 0 {
		t.Fatalf("при нулевых счётчиках понижений быть не должно, получили %d", rres.ClassesReverted)
	}
	if c, _ := f.class(t, first); c != "5th" {
		t.Fatalf("классы не должны меняться, получили %s", c)
	}
}

func TestRevert_RetrySkipsRevertedPhases(t *testing.T) {
	f := startDB(t)
	st := f.student(t, "Z1", "6th")
	f.entry(t, st, f.dst, models.Debit, models.RefOpeningBalance, 800)

	id, err := db.InsertPromotion(f.ctx, f.db, models.SessionPromotion{
		SourceSessionID:         f.src,
		TargetSessionID:         f.dst,
		CarriedForwardDues:      true,
		PromotedClasses:         true,
		StudentsPromoted:        1,
		StudentsWithDuesCarried: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	// состояние после первой попытки отката, упавшей между категориями:
	// класс уже понижен, флаг фазы снят вместе с понижением
	if err := db.SetStudentClass(f.ctx, f.db, st, "5th"); err != nil {
		t.Fatal(err)
	}
	if err := db.ClearPromotionPhases(f.ctx, f.db, id,
		db.PhasePromotedClasses, db.PhaseDeactivated12thStudents); err != nil {
		t.Fatal(err)
	}

	rev := promotion.NewRevertEngine(f.db, zap.NewNop())
	rres, err := rev.Execute(f.ctx, id, false, "повторный запуск")
	if err != nil {
		t.Fatal(err)
	}
	if !rres.Success {
		t.Fatalf("повторный откат упал: %s", rres.ErrorMessage)
	}
	// повторный запуск не понижает классы второй раз
	if rres.ClassesReverted != 0 {
		t.Fatalf("классы уже откатаны, ожидали 0 понижений, получили %d", rres.ClassesReverted)
	}
	if c, _ := f.class(t, st); c != "5th" {
		t.Fatalf("класс должен остаться 5th, получили %s", c)
	}
	// и добивает неразобранную категорию
	if rres.OpeningBalanceEntriesDeleted != 1 {
		t.Fatalf("ожидали 1 удалённый перенос долга, получили %d", rres.OpeningBalanceEntriesDeleted)
	}

	if _, err := rev.Execute(f.ctx, id, false, ""); !errs.IsConflict(err) {
		t.Fatalf("ожидали конфликт повторного отката, получили %v", err)
	}
}

func TestRevert_RoundTripRestoresState(t *testing.T) {
	f := startDB(t)
	junior := f.student(t, "R1", "5th")
	middle := f.student(t, "R2", "11th")
	senior := f.student(t, "R3", "12th")

	// отчислен вручную до прогона: под реактивацию попадать не должен
	expelled := f.student(t, "R4", "12th")
	if err := db.DeactivateStudent(f.ctx, f.db, expelled); err != nil {
		t.Fatal(err)
	}

	f.entry(t, junior, f.src, models.Debit, models.RefFeeCharge, 1000)
	f.fee(t, f.src, "5th", models.FeeMonthly, 500)
	f.fee(t, f.src, "6th", models.FeeMonthly, 600)
	f.fee(t, f.src, "12th", models.FeeAnnual, 25000)

	eng := promotion.NewEngine(f.db, zap.NewNop())
	ch, err := eng.Execute(f.ctx, f.src, f.dst, allOptions())
	if err != nil {
		t.Fatal(err)
	}
	res := drain(t, eng, ch)
	if !res.Success {
		t.Fatalf("rollover упал: %s", res.ErrorMessage)
	}

	rev := promotion.NewRevertEngine(f.db, zap.NewNop())
	check, err := rev.CheckSafety(f.ctx, res.PromotionID)
	if err != nil {
		t.Fatal(err)
	}
	if !check.CanRevertSafely {
		t.Fatalf("пост-rollover активности не было, откат безопасен: %v", check.Warnings)
	}

	rres, err := rev.Execute(f.ctx, res.PromotionID, false, "тестовый откат")
	if err != nil {
		t.Fatal(err)
	}
	if !rres.Success {
		t.Fatalf("откат упал: %s", rres.ErrorMessage)
	}

	if c, active := f.class(t, junior); c != "5th" || !active {
		t.Fatalf("ожидали 5th/active, получили %s/%v", c, active)
	}
	if c, active := f.class(t, middle); c != "11th" || !active {
		t.Fatalf("ожидали 11th/active, получили %s/%v", c, active)
	}
	if c, active := f.class(t, senior); c != "12th" || !active {
		t.Fatalf("выпускник должен быть восстановлен активным 12th, получили %s/%v", c, active)
	}
	if _, active := f.class(t, expelled); active {
		t.Fatal("отчисленный вручную студент не должен реактивироваться откатом")
	}

	cur, err := db.GetCurrentSession(f.ctx, f.db)
	if err != nil {
		t.Fatal(err)
	}
	if cur.ID != f.src {
		t.Fatalf("текущей должна вернуться исходная сессия")
	}

	// журнал целевой сессии пуст, старый долг остался
	bal, err := db.CurrentBalance(f.ctx, f.db, junior)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 1000 {
		t.Fatalf("ожидали исходный баланс 1000, получили %.2f", bal)
	}
	n, err := db.CountActiveFeeStructures(f.ctx, f.db, f.dst)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("скопированные fee structures должны быть удалены, осталось %d", n)
	}

	// повторный откат того же прогона — конфликт
	if _, err := rev.Execute(f.ctx, res.PromotionID, false, ""); !errs.IsConflict(err) {
		t.Fatalf("ожидали конфликт повторного отката, получили %v", err)
	}
}

func TestRevert_ForceDeleteRemovesPostRolloverData(t *testing.T) {
	f := startDB(t)
	junior := f.student(t, "F1", "5th")
	f.fee(t, f.src, "5th", models.FeeMonthly, 500)
	f.fee(t, f.src, "6th", models.FeeMonthly, 600)

	eng := promotion.NewEngine(f.db, zap.NewNop())
	ch, err := eng.Execute(f.ctx, f.src, f.dst, allOptions())
	if err != nil {
		t.Fatal(err)
	}
	res := drain(t, eng, ch)
	if !res.Success {
		t.Fatalf("rollover упал: %s", res.ErrorMessage)
	}

	// легитимная активность после rollover: платёж и новый студент
	f.entry(t, junior, f.dst, models.Credit, models.RefPayment, 700)
	newcomer, err := db.CreateStudent(f.ctx, f.db, models.Student{
		SrNumber: "F-NEW", AccountNumber: "ACC-F-NEW", Name: "Новый студент",
		CurrentClass: "1st", AdmissionDate: time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC),
		AdmissionSessionID: f.dst, IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	rev := promotion.NewRevertEngine(f.db, zap.NewNop())
	check, err := rev.CheckSafety(f.ctx, res.PromotionID)
	if err != nil {
		t.Fatal(err)
	}
	if check.CanRevertSafely || len(check.Warnings) != 2 {
		t.Fatalf("ожидали небезопасный откат с двумя предупреждениями: %v", check.Warnings)
	}

	rres, err := rev.Execute(f.ctx, res.PromotionID, true, "принудительный откат")
	if err != nil {
		t.Fatal(err)
	}
	if !rres.Success {
		t.Fatalf("откат упал: %s", rres.ErrorMessage)
	}
	if rres.ReceiptsDeleted != 1 {
		t.Fatalf("ожидали 1 удалённый платёж, получили %d", rres.ReceiptsDeleted)
	}
	if rres.StudentsDeleted != 1 {
		t.Fatalf("ожидали 1 удалённого студента, получили %d", rres.StudentsDeleted)
	}
	if _, err := db.GetStudentByID(f.ctx, f.db, newcomer); !errs.IsNotFound(err) {
		t.Fatalf("новый студент должен быть удалён, получили %v", err)
	}
	if c, active := f.class(t, junior); c != "5th" || !active {
		t.Fatalf("ожидали 5th/active, получили %s/%v", c, active)
	}
}
