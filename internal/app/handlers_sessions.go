package app

import (
	"net/http"

	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/models"
	"go.uber.org/zap"
)

type sessionPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsCurrent bool   `json:"is_current"`
	IsActive  bool   `json:"is_active"`
}

func sessionToPayload(ss *models.Session) sessionPayload {
	return sessionPayload{
		ID:        ss.ID,
		Name:      ss.Name,
		StartDate: ss.StartDate.Format("2006-01-02"),
		EndDate:   ss.EndDate.Format("2006-01-02"),
		IsCurrent: ss.IsCurrent,
		IsActive:  ss.IsActive,
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := db.ListSessions(r.Context(), s.DB)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	out := make([]sessionPayload, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessionToPayload(&sessions[i]))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	id, err := db.CreateSession(ctx, s.DB, req.Name, s.Loc)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	_ = db.RecordAudit(ctx, s.DB, "session", id, "create", req.Name)
	s.Log.Info("сессия создана", zap.Int64("id", id), zap.String("name", req.Name))

	ss, err := db.GetSessionByID(ctx, s.DB, id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sessionToPayload(ss))
}

func (s *Server) handleSetCurrentSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := db.SetCurrentSession(ctx, s.DB, id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	_ = db.RecordAudit(ctx, s.DB, "session", id, "set_current", "")
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_current": true})
}

// handleDeactivateSession — архивация сессии; текущая отклоняется конфликтом.
func (s *Server) handleDeactivateSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := db.DeactivateSession(ctx, s.DB, id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	_ = db.RecordAudit(ctx, s.DB, "session", id, "deactivate", "")
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": false})
}

type feeStructureRequest struct {
	SessionID      int64   `json:"session_id"`
	Class          string  `json:"class"`
	FeeType        string  `json:"fee_type"`
	Amount         float64 `json:"amount"`
	DiscountMonths int     `json:"full_year_discount_months,omitempty"`
}

// handleUpsertFeeStructure создаёт или заменяет активную строку платы.
// Amount <= 0 деактивирует существующую строку.
func (s *Server) handleUpsertFeeStructure(w http.ResponseWriter, r *http.Request) {
	var req feeStructureRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	if err := s.Fees.Resolver.Upsert(ctx, req.SessionID, req.Class,
		models.FeeType(req.FeeType), req.Amount, req.DiscountMonths); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"class":      req.Class,
		"fee_type":   req.FeeType,
		"amount":     req.Amount,
	})
}

func (s *Server) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	id, err := db.CreateRoute(r.Context(), s.DB, req.Name)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": id, "name": req.Name})
}

func (s *Server) handleSetRouteFee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req struct {
		Class      string  `json:"class"`
		MonthlyFee float64 `json:"monthly_fee"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := db.SetRouteClassFee(r.Context(), s.DB, id, req.Class, req.MonthlyFee); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"route_id": id, "class": req.Class, "monthly_fee": req.MonthlyFee})
}

func (s *Server) handleEnrollTransport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req struct {
		RouteID   int64  `json:"route_id"`
		StartDate string `json:"start_date,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	start, err := s.parseDate(req.StartDate)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	enrollID, err := db.EnrollTransport(r.Context(), s.DB, id, req.RouteID, start)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"enrollment_id": enrollID})
}

func (s *Server) handleEndTransport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req struct {
		EndDate string `json:"end_date,omitempty"`
	}
	// тело у DELETE опционально
	if r.ContentLength > 0 && !s.decode(w, r, &req) {
		return
	}
	end, err := s.parseDate(req.EndDate)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := db.EndTransport(r.Context(), s.DB, id, end); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"student_id": id, "has_transport": false})
}
