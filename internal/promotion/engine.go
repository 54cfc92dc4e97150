package promotion

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/errs"
	"github.com/Spok95/school-fees-service/internal/fees"
	"github.com/Spok95/school-fees-service/internal/metrics"
	"github.com/Spok95/school-fees-service/internal/models"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle       State = "IDLE"
	StatePreviewing State = "PREVIEWING"
	StateExecuting  State = "EXECUTING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// Фазы rollover: порядок фиксированный и не зависит от того,
// какие из них включены.
type Options struct {
	CopyFeeStructures      bool
	CarryForwardDues       bool
	PromoteClasses         bool
	Deactivate12thStudents bool
	AddTuitionFees         bool
	AddTransportFees       bool
	SetAsCurrent           bool
	BatchSize              int // шаг эмиссии прогресса внутри пофазных циклов
}

const defaultBatchSize = 25

type Preview struct {
	TotalStudents         int            `json:"total_students"`
	ClassWiseCounts       map[string]int `json:"class_wise_counts"`
	StudentsIn12th        int            `json:"students_in_12th"`
	StudentsWithDues      int            `json:"students_with_dues"`
	TotalDuesAmount       float64        `json:"total_dues_amount"`
	FeeStructuresCount    int            `json:"fee_structures_count"`
	StudentsWithTransport int            `json:"students_with_transport"`
}

// Снимок прогресса. Потребитель читает и ничего не мутирует.
type Progress struct {
	CurrentStep     string  `json:"current_step"`
	PercentComplete float64 `json:"percent_complete"`
	Error           string  `json:"error,omitempty"`
}

type Result struct {
	PromotionID             int64   `json:"promotion_id"`
	Success                 bool    `json:"success"`
	ErrorMessage            string  `json:"error_message,omitempty"`
	FeeStructuresCopied     int     `json:"fee_structures_copied"`
	StudentsPromoted        int     `json:"students_promoted"`
	StudentsWithDuesCarried int     `json:"students_with_dues_carried"`
	StudentsDeactivated     int     `json:"students_deactivated"`
	DuesCarriedForward      float64 `json:"dues_carried_forward"`
	TotalFeesAdded          float64 `json:"total_fees_added"`
}

// Engine выполняет rollover состава на новую сессию. Один активный прогон
// на процесс: старт при EXECUTING отклоняется как конфликт.
type Engine struct {
	DB   *sql.DB
	Fees *fees.Engine
	Log  *zap.Logger

	mu           sync.Mutex
	state        State
	lastProgress Progress
	lastResult   *Result
}

func NewEngine(database *sql.DB, log *zap.Logger) *Engine {
	return &Engine{
		DB:    database,
		Fees:  fees.NewEngine(database),
		Log:   log,
		state: StateIdle,
	}
}

// Status — текущее состояние, последний прогресс и результат (если есть).
func (e *Engine) Status() (State, Progress, *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.lastProgress, e.lastResult
}

// Preview считает план rollover без единой мутации. Детерминирован
// для данного снимка состава, можно звать сколько угодно раз.
func (e *Engine) Preview(ctx context.Context, sourceSessionID, targetSessionID int64) (*Preview, error) {
	e.mu.Lock()
	if e.state == StateExecuting {
		e.mu.Unlock()
		return nil, errs.Conflictf("rollover уже выполняется")
	}
	prev := e.state
	e.state = StatePreviewing
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.state = prev
		e.mu.Unlock()
	}()

	if _, err := db.GetSessionByID(ctx, e.DB, sourceSessionID); err != nil {
		return nil, err
	}
	if _, err := db.GetSessionByID(ctx, e.DB, targetSessionID); err != nil {
		return nil, err
	}

	students, err := db.ListActiveStudents(ctx, e.DB)
	if err != nil {
		return nil, err
	}
	counts, err := db.CountActiveByClass(ctx, e.DB)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		TotalStudents:   len(students),
		ClassWiseCounts: counts,
		StudentsIn12th:  counts[models.SeniorClass],
	}

	for _, st := range students {
		bal, err := db.CurrentBalance(ctx, e.DB, st.ID)
		if err != nil {
			return nil, err
		}
		// долгом считается только положительный баланс; авансы не в счёт
		if bal > 0 {
			p.StudentsWithDues++
			p.TotalDuesAmount += bal
		}
	}

	p.FeeStructuresCount, err = db.CountActiveFeeStructures(ctx, e.DB, sourceSessionID)
	if err != nil {
		return nil, err
	}
	p.StudentsWithTransport, err = db.CountActiveTransportStudents(ctx, e.DB)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Execute запускает rollover в фоне и возвращает канал прогресса.
// Канал закрывается после финального снимка. Падение на любом студенте
// останавливает прогон (fail-fast); уже записанные эффекты НЕ откатываются
// автоматически — оператору предлагается SessionRevertEngine.
func (e *Engine) Execute(ctx context.Context, sourceSessionID, targetSessionID int64, opts Options) (<-chan Progress, error) {
	if sourceSessionID == targetSessionID {
		return nil, errs.Validationf("исходная и целевая сессии совпадают")
	}
	if _, err := db.GetSessionByID(ctx, e.DB, sourceSessionID); err != nil {
		return nil, err
	}
	if _, err := db.GetSessionByID(ctx, e.DB, targetSessionID); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.state == StateExecuting {
		e.mu.Unlock()
		return nil, errs.Conflictf("rollover уже выполняется")
	}
	e.state = StateExecuting
	e.lastResult = nil
	e.mu.Unlock()

	ch := make(chan Progress, 16)
	go e.run(ctx, sourceSessionID, targetSessionID, opts, ch)
	return ch, nil
}

func (e *Engine) emit(ch chan<- Progress, p Progress) {
	e.mu.Lock()
	e.lastProgress = p
	e.mu.Unlock()
	select {
	case ch <- p:
	default:
		// медленный потребитель не должен тормозить прогон
	}
}

type runCounters struct {
	done, total int
}

// Какие фазы реально стартовали. Audit-строка пишется по этому снимку,
// а не по запрошенным опциям: прогон, упавший до фазы, не должен
// оставлять в audit флаг, по которому откат разберёт нетронутое.
type phaseRecord struct {
	copiedStructures   bool
	carriedDues        bool
	promotedClasses    bool
	deactivatedSeniors bool
	addedTuition       bool
	addedTransport     bool
	setCurrent         bool
}

func (e *Engine) run(ctx context.Context, sourceID, targetID int64, opts Options, ch chan<- Progress) {
	defer close(ch)
	start := time.Now()
	metrics.PromotionRuns.Inc()

	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	res := &Result{}
	ran := &phaseRecord{}
	runErr := e.runPhases(ctx, sourceID, targetID, opts, ch, res, ran)

	// audit-строка пишется и при падении: без неё откат частичного
	// прогона был бы невозможен. Флаги — по фазам, которые стартовали.
	audit := models.SessionPromotion{
		SourceSessionID:         sourceID,
		TargetSessionID:         targetID,
		StartedAt:               start,
		CopiedFeeStructures:     ran.copiedStructures,
		CarriedForwardDues:      ran.carriedDues,
		PromotedClasses:         ran.promotedClasses,
		Deactivated12thStudents: ran.deactivatedSeniors,
		AddedTuitionFees:        ran.addedTuition,
		AddedTransportFees:      ran.addedTransport,
		SetAsCurrent:            ran.setCurrent,
		FeeStructuresCopied:     res.FeeStructuresCopied,
		StudentsPromoted:        res.StudentsPromoted,
		StudentsWithDuesCarried: res.StudentsWithDuesCarried,
		StudentsDeactivated:     res.StudentsDeactivated,
		TotalFeesAdded:          res.TotalFeesAdded,
		Success:                 runErr == nil,
	}
	if runErr != nil {
		msg := runErr.Error()
		audit.ErrorMessage = &msg
	}
	id, auditErr := db.InsertPromotion(ctx, e.DB, audit)
	if auditErr != nil {
		e.Log.Error("не удалось записать audit-строку rollover", zap.Error(auditErr))
		if runErr == nil {
			runErr = auditErr
		}
	}
	res.PromotionID = id

	final := Progress{CurrentStep: "завершено", PercentComplete: 100}
	if runErr != nil {
		metrics.PromotionErrors.Inc()
		res.Success = false
		res.ErrorMessage = runErr.Error()
		e.mu.Lock()
		final = e.lastProgress // процент остаётся там, где прогон упал
		e.mu.Unlock()
		final.Error = runErr.Error()
		e.Log.Error("rollover прерван", zap.Error(runErr),
			zap.Int("students_promoted", res.StudentsPromoted))
	} else {
		res.Success = true
		e.Log.Info("rollover завершён",
			zap.Int64("promotion_id", id),
			zap.Int("students_promoted", res.StudentsPromoted),
			zap.Float64("total_fees_added", res.TotalFeesAdded))
	}
	metrics.PromotionDuration.Observe(time.Since(start).Seconds())

	e.mu.Lock()
	e.lastResult = res
	if runErr != nil {
		e.state = StateFailed
	} else {
		e.state = StateCompleted
	}
	e.lastProgress = final
	e.mu.Unlock()

	select {
	case ch <- final:
	default:
	}
}

func (e *Engine) runPhases(ctx context.Context, sourceID, targetID int64, opts Options, ch chan<- Progress, res *Result, ran *phaseRecord) error {
	students, err := db.ListActiveStudents(ctx, e.DB)
	if err != nil {
		return err
	}

	rc := runCounters{}
	if opts.CopyFeeStructures {
		rc.total++
	}
	if opts.CarryForwardDues {
		rc.total += len(students)
	}
	if opts.PromoteClasses {
		rc.total += len(students)
	}
	if opts.AddTuitionFees || opts.AddTransportFees {
		rc.total += len(students)
	}
	if opts.SetAsCurrent {
		rc.total++
	}
	if rc.total == 0 {
		return errs.Validationf("не включена ни одна фаза rollover")
	}

	pct := func() float64 { return float64(rc.done) / float64(rc.total) * 100 }

	targetSession, err := db.GetSessionByID(ctx, e.DB, targetID)
	if err != nil {
		return err
	}
	sourceSession, err := db.GetSessionByID(ctx, e.DB, sourceID)
	if err != nil {
		return err
	}

	// фаза 1: копирование fee structures
	if opts.CopyFeeStructures {
		e.emit(ch, Progress{CurrentStep: "копирование fee structures", PercentComplete: pct()})
		n, err := db.CopyFeeStructures(ctx, e.DB, sourceID, targetID)
		if err != nil {
			return fmt.Errorf("копирование fee structures: %w", err)
		}
		// один INSERT...SELECT: при ошибке не скопировано ничего,
		// флаг ставится только на успехе
		ran.copiedStructures = true
		res.FeeStructuresCopied = n
		rc.done++
		e.emit(ch, Progress{CurrentStep: "копирование fee structures", PercentComplete: pct()})
	}

	// фаза 2: перенос долгов opening balance
	if opts.CarryForwardDues {
		// флаг на входе в цикл: падение в середине оставляет частично
		// перенесённые долги, которые откат обязан убрать
		ran.carriedDues = true
		for i, st := range students {
			if i%opts.BatchSize == 0 {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("перенос долгов прерван: %w", err)
				}
				e.emit(ch, Progress{CurrentStep: "перенос долгов", PercentComplete: pct()})
			}
			bal, err := db.CurrentBalance(ctx, e.DB, st.ID)
			if err != nil {
				return fmt.Errorf("перенос долгов, студент %d: %w", st.ID, err)
			}
			if bal > 0 {
				remarks := fmt.Sprintf("Перенос долга из %s", sourceSession.Name)
				added, err := e.Fees.AssignOpeningBalance(ctx, st.ID, targetID, bal, targetSession.StartDate, remarks)
				if err != nil {
					return fmt.Errorf("перенос долгов, студент %d: %w", st.ID, err)
				}
				if added {
					res.StudentsWithDuesCarried++
					res.DuesCarriedForward += bal
				}
			}
			rc.done++
		}
		e.emit(ch, Progress{CurrentStep: "перенос долгов", PercentComplete: pct()})
	}

	// фаза 3: перевод классов, строго по порядку NC→…→12th
	if opts.PromoteClasses {
		ran.promotedClasses = true
		ran.deactivatedSeniors = opts.Deactivate12thStudents
		for i, st := range students {
			if i%opts.BatchSize == 0 {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("перевод классов прерван: %w", err)
				}
				e.emit(ch, Progress{CurrentStep: "перевод классов", PercentComplete: pct()})
			}
			if st.CurrentClass == models.SeniorClass {
				if opts.Deactivate12thStudents {
					if err := db.DeactivateStudent(ctx, e.DB, st.ID); err != nil {
						return fmt.Errorf("деактивация 12-классника %d: %w", st.ID, err)
					}
					res.StudentsDeactivated++
				}
				// иначе остаётся терминальным 12th
			} else if next, ok := models.NextClass(st.CurrentClass); ok {
				if err := db.SetStudentClass(ctx, e.DB, st.ID, next); err != nil {
					return fmt.Errorf("перевод студента %d: %w", st.ID, err)
				}
				res.StudentsPromoted++
			}
			rc.done++
		}
		e.emit(ch, Progress{CurrentStep: "перевод классов", PercentComplete: pct()})
	}

	// фаза 4: начисление платы за новую сессию (после перевода классов —
	// по новому классу)
	if opts.AddTuitionFees || opts.AddTransportFees {
		active, err := db.ListActiveStudents(ctx, e.DB)
		if err != nil {
			return err
		}
		ran.addedTuition = opts.AddTuitionFees
		ran.addedTransport = opts.AddTransportFees
		for i, st := range active {
			if i%opts.BatchSize == 0 {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("начисление платы прервано: %w", err)
				}
				e.emit(ch, Progress{CurrentStep: "начисление платы", PercentComplete: pct()})
			}
			_, total, err := e.Fees.AssignSessionFees(ctx, st.ID, targetID, opts.AddTuitionFees, opts.AddTransportFees)
			if err != nil {
				return fmt.Errorf("начисление платы, студент %d: %w", st.ID, err)
			}
			res.TotalFeesAdded += total
			rc.done++
		}
		// состав мог сократиться после фазы 3 — добиваем счётчик до конца фазы
		rc.done += len(students) - len(active)
		if rc.done > rc.total {
			rc.done = rc.total
		}
		e.emit(ch, Progress{CurrentStep: "начисление платы", PercentComplete: pct()})
	}

	// фаза 5: целевая сессия становится текущей
	if opts.SetAsCurrent {
		e.emit(ch, Progress{CurrentStep: "смена текущей сессии", PercentComplete: pct()})
		if err := db.SetCurrentSession(ctx, e.DB, targetID); err != nil {
			return fmt.Errorf("смена текущей сессии: %w", err)
		}
		ran.setCurrent = true
		rc.done++
	}

	return nil
}
