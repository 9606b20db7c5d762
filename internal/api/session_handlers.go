package api

import (
	"bytes"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/terra-clan/koi-prep/internal/editor"
	"github.com/terra-clan/koi-prep/internal/models"
	"github.com/terra-clan/koi-prep/internal/report"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.machine.NewSession()
	s.sessions.Add(sess)

	slog.Info("session created", "session_id", sess.ID(), "remote_addr", r.RemoteAddr)
	respondJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SessionFromContext(r.Context()).View())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	if err := s.sessions.Delete(sess.ID()); err != nil {
		respondSessionError(w, r, err, "delete session")
		return
	}

	slog.Info("session deleted", "session_id", sess.ID())
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "session deleted",
	})
}

// Step transitions

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var cfg models.TestConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}

	view, err := SessionFromContext(r.Context()).Start(cfg)
	if err != nil {
		respondSessionError(w, r, err, "start session")
		return
	}

	respondJSON(w, http.StatusAccepted, view)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	// completing the last problem triggers the analysis call
	refund := func() {}
	if current := sess.View(); current.Step == models.StepTesting && current.Runner != nil && current.Runner.IsLast {
		var ok bool
		if refund, ok = s.chargeQuota(w, r); !ok {
			return
		}
	}

	view, err := sess.Advance()
	if err != nil {
		refund()
		respondSessionError(w, r, err, "advance")
		return
	}

	status := http.StatusOK
	if view.Step == models.StepAnalyzing {
		status = http.StatusAccepted
	}
	respondJSON(w, status, view)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	view, err := SessionFromContext(r.Context()).Finish()
	if err != nil {
		respondSessionError(w, r, err, "finish")
		return
	}

	respondJSON(w, http.StatusAccepted, view)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	view, err := SessionFromContext(r.Context()).Restart()
	if err != nil {
		respondSessionError(w, r, err, "restart")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// Test runner

func (s *Server) handleSelectProblem(w http.ResponseWriter, r *http.Request) {
	var req models.SelectProblemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := SessionFromContext(r.Context()).SelectProblem(req.Index)
	if err != nil {
		respondSessionError(w, r, err, "select problem")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleEditCode(w http.ResponseWriter, r *http.Request) {
	var req models.EditCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := SessionFromContext(r.Context()).EditCode(req.Code)
	if err != nil {
		respondSessionError(w, r, err, "edit code")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handlePressKey applies the Tab and Enter transforms of the code editor.
// It is stateless; the client sends the buffer and stores the result with
// PUT /code.
func (s *Server) handlePressKey(w http.ResponseWriter, r *http.Request) {
	var req models.KeyPressRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := editor.PressKey(req.Key, editor.Buffer{
		Text:           req.Text,
		SelectionStart: req.SelectionStart,
		SelectionEnd:   req.SelectionEnd,
	})
	if err != nil {
		respondSessionError(w, r, err, "apply editor key")
		return
	}

	respondJSON(w, http.StatusOK, models.KeyPressResponse{
		Text:   res.Text,
		Cursor: res.Cursor,
	})
}

func (s *Server) handleRunSample(w http.ResponseWriter, r *http.Request) {
	view, err := SessionFromContext(r.Context()).Run()
	if err != nil {
		respondSessionError(w, r, err, "run sample")
		return
	}

	respondJSON(w, http.StatusAccepted, view)
}

// Report

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := SessionFromContext(r.Context()).Report()
	if err != nil {
		respondSessionError(w, r, err, "get report")
		return
	}

	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handlePrintReport(w http.ResponseWriter, r *http.Request) {
	rep, err := SessionFromContext(r.Context()).Report()
	if err != nil {
		respondSessionError(w, r, err, "print report")
		return
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, rep, report.Options{Print: true}); err != nil {
		respondSessionError(w, r, err, "render report")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("failed to write report page", "error", err)
	}
}

// handleExportReport returns the report as a PDF download. Nothing is
// written until the whole document is built.
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	var userName string
	data, err := sess.Export(func(rep *models.ReportResponse) ([]byte, error) {
		userName = rep.UserName
		return s.exporter.PDF(rep)
	})
	if err != nil {
		respondSessionError(w, r, err, "export report")
		return
	}

	slog.Info("report exported", "session_id", sess.ID(), "bytes", len(data))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": report.FileName(userName),
	}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Debug("failed to write report document", "error", err)
	}
}
