package app

import (
	"context"
	"net/http"

	"github.com/Spok95/school-fees-service/internal/ctxutil"
	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/export"
	"github.com/Spok95/school-fees-service/internal/promotion"
	"go.uber.org/zap"
)

type promotionRequest struct {
	SourceSessionID int64 `json:"source_session_id"`
	TargetSessionID int64 `json:"target_session_id"`

	CopyFeeStructures      bool `json:"copy_fee_structures"`
	CarryForwardDues       bool `json:"carry_forward_dues"`
	PromoteClasses         bool `json:"promote_classes"`
	Deactivate12thStudents bool `json:"deactivate_12th_students"`
	AddTuitionFees         bool `json:"add_tuition_fees"`
	AddTransportFees       bool `json:"add_transport_fees"`
	SetAsCurrent           bool `json:"set_as_current"`
	BatchSize              int  `json:"batch_size,omitempty"`
}

func (p *promotionRequest) options() promotion.Options {
	return promotion.Options{
		CopyFeeStructures:      p.CopyFeeStructures,
		CarryForwardDues:       p.CarryForwardDues,
		PromoteClasses:         p.PromoteClasses,
		Deactivate12thStudents: p.Deactivate12thStudents,
		AddTuitionFees:         p.AddTuitionFees,
		AddTransportFees:       p.AddTransportFees,
		SetAsCurrent:           p.SetAsCurrent,
		BatchSize:              p.BatchSize,
	}
}

func (s *Server) handlePromotionPreview(w http.ResponseWriter, r *http.Request) {
	var req promotionRequest
	if !s.decode(w, r, &req) {
		return
	}
	prev, err := s.Promotion.Preview(r.Context(), req.SourceSessionID, req.TargetSessionID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, prev)
}

// handlePromotionExecute запускает rollover в фоне и сразу отвечает 202.
// Прогресс и итог дальше доступны через /api/promotions/status.
func (s *Server) handlePromotionExecute(w http.ResponseWriter, r *http.Request) {
	var req promotionRequest
	if !s.decode(w, r, &req) {
		return
	}
	// прогон живёт дольше HTTP-запроса, обрыв соединения его не прерывает
	ch, err := s.Promotion.Execute(context.WithoutCancel(r.Context()), req.SourceSessionID, req.TargetSessionID, req.options())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	go func() {
		for range ch {
		}
		state, _, res := s.Promotion.Status()
		if res != nil {
			s.notifyPromotionDone(res)
		}
		s.Log.Info("rollover завершён", zap.String("state", string(state)))
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{"state": string(promotion.StateExecuting)})
}

func (s *Server) handlePromotionStatus(w http.ResponseWriter, r *http.Request) {
	state, progress, res := s.Promotion.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"state":    string(state),
		"progress": progress,
		"result":   res,
	})
}

func (s *Server) handleRevertSafety(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	check, err := s.Revert.CheckSafety(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, check)
}

type revertRequest struct {
	ForceDelete bool   `json:"force_delete"`
	Reason      string `json:"reason,omitempty"`
}

func (s *Server) handleRevertExecute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req revertRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.Revert.Execute(r.Context(), id, req.ForceDelete, req.Reason)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.notifyRevertDone(id, res)
	s.writeJSON(w, http.StatusOK, res)
}

// handleDuesRegister отдаёт реестр должников как .xlsx.
func (s *Server) handleDuesRegister(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := ctxutil.WithTimeout(r.Context(), ctxutil.DefaultExportTimeout)
	defer cancel()
	cur, err := db.GetCurrentSession(ctx, s.DB)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	f, err := export.BuildDuesRegister(ctx, s.DB)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.BuildDuesRegisterFilename(cur.Name)+`"`)
	if err := f.Write(w); err != nil {
		s.Log.Warn("выгрузка xlsx", zap.Error(err))
	}
}
