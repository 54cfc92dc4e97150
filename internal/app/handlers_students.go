package app

import (
	"fmt"
	"net/http"

	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/models"
	"go.uber.org/zap"
)

type studentPayload struct {
	ID               int64    `json:"id,omitempty"`
	SrNumber         string   `json:"sr_number"`
	AccountNumber    string   `json:"account_number"`
	Name             string   `json:"name"`
	GuardianName     string   `json:"guardian_name"`
	GuardianPhone    *string  `json:"guardian_phone,omitempty"`
	Class            string   `json:"class"`
	Section          string   `json:"section"`
	AdmissionDate    string   `json:"admission_date,omitempty"`
	SessionID        int64    `json:"session_id,omitempty"`
	HasTransport     bool     `json:"has_transport"`
	TransportRouteID *int64   `json:"transport_route_id,omitempty"`
	OpeningBalance   float64  `json:"opening_balance,omitempty"`
	InitialPayment   float64  `json:"initial_payment,omitempty"`
	AdmissionFeePaid bool     `json:"admission_fee_paid,omitempty"`
	IsActive         bool     `json:"is_active"`
	Balance          *float64 `json:"balance,omitempty"`
}

func studentToPayload(st *models.Student) studentPayload {
	return studentPayload{
		ID:               st.ID,
		SrNumber:         st.SrNumber,
		AccountNumber:    st.AccountNumber,
		Name:             st.Name,
		GuardianName:     st.GuardianName,
		GuardianPhone:    st.GuardianPhone,
		Class:            st.CurrentClass,
		Section:          st.Section,
		AdmissionDate:    st.AdmissionDate.Format("2006-01-02"),
		SessionID:        st.AdmissionSessionID,
		HasTransport:     st.HasTransport,
		TransportRouteID: st.TransportRouteID,
		OpeningBalance:   st.OpeningBalance,
		AdmissionFeePaid: st.AdmissionFeePaid,
		IsActive:         st.IsActive,
	}
}

// handleCreateStudent заводит студента и сразу формирует его журнал:
// входящий долг, начисления текущей сессии, вступительный взнос и
// уже внесённую оплату, если она передана.
func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req studentPayload
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	sessionID := req.SessionID
	if sessionID == 0 {
		cur, err := db.GetCurrentSession(ctx, s.DB)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		sessionID = cur.ID
	}
	admissionDate, err := s.parseDate(req.AdmissionDate)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	st := models.Student{
		SrNumber:           req.SrNumber,
		AccountNumber:      req.AccountNumber,
		Name:               req.Name,
		GuardianName:       req.GuardianName,
		GuardianPhone:      req.GuardianPhone,
		CurrentClass:       req.Class,
		Section:            req.Section,
		AdmissionDate:      admissionDate,
		AdmissionSessionID: sessionID,
		HasTransport:       req.HasTransport,
		TransportRouteID:   req.TransportRouteID,
		OpeningBalance:     req.OpeningBalance,
		AdmissionFeePaid:   req.AdmissionFeePaid,
		IsActive:           true,
	}
	if req.OpeningBalance != 0 {
		d := admissionDate
		st.OpeningBalanceDate = &d
	}

	id, err := db.CreateStudent(ctx, s.DB, st)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	if _, err := s.Fees.AssignOpeningBalance(ctx, id, sessionID, req.OpeningBalance, admissionDate,
		"Входящий остаток при приёме"); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if _, _, err := s.Fees.AssignSessionFees(ctx, id, sessionID, true, req.HasTransport); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if !req.AdmissionFeePaid {
		if _, err := s.Fees.AssignAdmissionFee(ctx, id, sessionID, admissionDate); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}
	if req.HasTransport && req.TransportRouteID != nil {
		if _, err := db.EnrollTransport(ctx, s.DB, id, *req.TransportRouteID, admissionDate); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}
	if req.InitialPayment > 0 {
		if err := s.Fees.AssignInitialPayment(ctx, id, sessionID, req.InitialPayment, admissionDate,
			"Оплата при заведении"); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}

	_ = db.RecordAudit(ctx, s.DB, "student", id, "create",
		fmt.Sprintf("class=%s session=%d", req.Class, sessionID))
	s.Log.Info("студент создан", zap.Int64("id", id), zap.String("class", req.Class))

	st.ID = id
	s.writeJSON(w, http.StatusCreated, studentToPayload(&st))
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := db.ListActiveStudents(r.Context(), s.DB)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	out := make([]studentPayload, 0, len(students))
	for i := range students {
		out = append(out, studentToPayload(&students[i]))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type ledgerEntryPayload struct {
	ID            int64   `json:"id"`
	SessionID     int64   `json:"session_id"`
	Type          string  `json:"type"`
	ReferenceType string  `json:"reference_type"`
	Amount        float64 `json:"amount"`
	EntryDate     string  `json:"entry_date"`
	Remarks       *string `json:"remarks,omitempty"`
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	ctx := r.Context()

	st, err := db.GetStudentByID(ctx, s.DB, id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	balance, err := db.CurrentBalance(ctx, s.DB, id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	entries, err := db.ListEntriesByStudent(ctx, s.DB, id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	p := studentToPayload(st)
	p.Balance = &balance
	ledger := make([]ledgerEntryPayload, 0, len(entries))
	for _, e := range entries {
		ledger = append(ledger, ledgerEntryPayload{
			ID:            e.ID,
			SessionID:     e.SessionID,
			Type:          string(e.Type),
			ReferenceType: string(e.ReferenceType),
			Amount:        e.Amount,
			EntryDate:     e.EntryDate.Format("2006-01-02"),
			Remarks:       e.Remarks,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"student": p, "ledger": ledger})
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req studentPayload
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	st, err := db.GetStudentByID(ctx, s.DB, id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	st.Name = req.Name
	st.GuardianName = req.GuardianName
	st.GuardianPhone = req.GuardianPhone
	st.CurrentClass = req.Class
	st.Section = req.Section
	st.HasTransport = req.HasTransport
	st.TransportRouteID = req.TransportRouteID
	st.IsActive = req.IsActive

	if err := db.UpdateStudent(ctx, s.DB, *st); err != nil {
		s.writeErr(w, r, err)
		return
	}
	_ = db.RecordAudit(ctx, s.DB, "student", id, "update", "")
	s.writeJSON(w, http.StatusOK, studentToPayload(st))
}

// handleDeactivateStudent — мягкое выбытие: журнал остаётся нетронутым.
func (s *Server) handleDeactivateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := db.DeactivateStudent(ctx, s.DB, id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	_ = db.RecordAudit(ctx, s.DB, "student", id, "deactivate", "")
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": false})
}

type paymentRequest struct {
	SessionID   int64   `json:"session_id,omitempty"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date,omitempty"`
	Description string  `json:"description,omitempty"`
}

func (s *Server) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req paymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	if _, err := db.GetStudentByID(ctx, s.DB, id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	sessionID := req.SessionID
	if sessionID == 0 {
		cur, err := db.GetCurrentSession(ctx, s.DB)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		sessionID = cur.ID
	}
	date, err := s.parseDate(req.Date)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	desc := req.Description
	if desc == "" {
		desc = "Оплата " + date.Format("02.01.2006")
	}
	if err := s.Fees.AssignInitialPayment(ctx, id, sessionID, req.Amount, date, desc); err != nil {
		s.writeErr(w, r, err)
		return
	}
	balance, err := db.CurrentBalance(ctx, s.DB, id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	_ = db.RecordAudit(ctx, s.DB, "student", id, "payment", fmt.Sprintf("amount=%.2f", req.Amount))
	s.writeJSON(w, http.StatusCreated, map[string]any{"student_id": id, "balance": balance})
}
