package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Spok95/school-fees-service/internal/ctxutil"
	"github.com/Spok95/school-fees-service/internal/errs"
	"github.com/Spok95/school-fees-service/internal/fees"
	"github.com/Spok95/school-fees-service/internal/metrics"
	"github.com/Spok95/school-fees-service/internal/observability"
	"github.com/Spok95/school-fees-service/internal/promotion"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Server — админский HTTP-интерфейс: ученики, структуры платы, сессии,
// rollover и его откат, выгрузка долгов.
type Server struct {
	DB        *sql.DB
	Fees      *fees.Engine
	Promotion *promotion.Engine
	Revert    *promotion.RevertEngine
	Log       *zap.Logger
	Loc       *time.Location

	// nil — telegram-уведомления выключены
	Bot      *tgbotapi.BotAPI
	AdminIDs []int64

	srv *http.Server
}

func StartHTTP(ctx context.Context, addr string, s *Server) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
		defer cancel()
		t0 := time.Now()
		if err := s.DB.PingContext(ctx); err != nil {
			http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		metrics.ObserveDBPing(time.Since(t0))
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/students", s.route("student_create", s.handleCreateStudent))
	mux.HandleFunc("GET /api/students", s.route("student_list", s.handleListStudents))
	mux.HandleFunc("GET /api/students/{id}", s.route("student_get", s.handleGetStudent))
	mux.HandleFunc("PUT /api/students/{id}", s.route("student_update", s.handleUpdateStudent))
	mux.HandleFunc("DELETE /api/students/{id}", s.route("student_deactivate", s.handleDeactivateStudent))
	mux.HandleFunc("POST /api/students/{id}/payments", s.route("payment_add", s.handleAddPayment))

	mux.HandleFunc("GET /api/sessions", s.route("session_list", s.handleListSessions))
	mux.HandleFunc("POST /api/sessions", s.route("session_create", s.handleCreateSession))
	mux.HandleFunc("POST /api/sessions/{id}/current", s.route("session_set_current", s.handleSetCurrentSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.route("session_deactivate", s.handleDeactivateSession))

	mux.HandleFunc("PUT /api/fee-structures", s.route("fee_structure_upsert", s.handleUpsertFeeStructure))

	mux.HandleFunc("POST /api/transport/routes", s.route("route_create", s.handleCreateRoute))
	mux.HandleFunc("PUT /api/transport/routes/{id}/fees", s.route("route_fee_set", s.handleSetRouteFee))
	mux.HandleFunc("POST /api/students/{id}/transport", s.route("transport_enroll", s.handleEnrollTransport))
	mux.HandleFunc("DELETE /api/students/{id}/transport", s.route("transport_end", s.handleEndTransport))

	mux.HandleFunc("POST /api/promotions/preview", s.route("promotion_preview", s.handlePromotionPreview))
	mux.HandleFunc("POST /api/promotions/execute", s.route("promotion_execute", s.handlePromotionExecute))
	mux.HandleFunc("GET /api/promotions/status", s.route("promotion_status", s.handlePromotionStatus))
	mux.HandleFunc("GET /api/promotions/{id}/revert-safety", s.route("revert_safety", s.handleRevertSafety))
	mux.HandleFunc("POST /api/promotions/{id}/revert", s.route("revert_execute", s.handleRevertExecute))

	mux.HandleFunc("GET /api/reports/dues.xlsx", s.route("dues_export", s.handleDuesRegister))

	s.srv = &http.Server{Addr: addr, Handler: mux}

	go func() {
		_ = s.srv.ListenAndServe() // закрываем аккуратно при Shutdown
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shCtx)
	}()

	return s
}

// route помечает контекст именем операции и меряет длительность запроса.
func (s *Server) route(op string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r.WithContext(ctxutil.WithOp(r.Context(), op)))
		s.Log.Debug("запрос обработан",
			zap.String("op", op), zap.Duration("took", time.Since(start)))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Warn("json encode", zap.Error(err))
	}
}

// writeErr переводит доменные ошибки в HTTP-статусы; всё прочее — 500 + Sentry.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errs.IsValidation(err):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errs.IsNotFound(err):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errs.IsConflict(err):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		op, _ := ctxutil.Op(r.Context())
		s.Log.Error("internal", zap.String("op", op), zap.Error(err))
		observability.CaptureErr(err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json: " + err.Error()})
		return false
	}
	return true
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Validationf("некорректный id %q", r.PathValue("id"))
	}
	return id, nil
}

// parseDate принимает "2006-01-02"; пустая строка — сегодня в зоне школы.
func (s *Server) parseDate(v string) (time.Time, error) {
	if v == "" {
		now := time.Now().In(s.Loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.Loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, s.Loc)
	if err != nil {
		return time.Time{}, errs.Validationf("некорректная дата %q, ожидается YYYY-MM-DD", v)
	}
	return t, nil
}
