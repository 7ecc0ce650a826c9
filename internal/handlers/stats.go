package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/internal/i18n"
	"github.com/eduaventuras/apiserver/internal/services"
	"github.com/eduaventuras/apiserver/types"
)

// StatsHandler serves the public summary, the admin dashboard and PDF reports.
type StatsHandler struct {
	stats   *services.StatsService
	users   *services.UserService
	reports *services.ReportService
	bundle  *i18n.Bundle
	logger  logrus.FieldLogger
}

// NewStatsHandler constructs the statistics and reports handler.
func NewStatsHandler(stats *services.StatsService, users *services.UserService, reports *services.ReportService, bundle *i18n.Bundle, logger logrus.FieldLogger) *StatsHandler {
	return &StatsHandler{stats: stats, users: users, reports: reports, bundle: bundle, logger: logger}
}

// StatsRouter registers the public statistics routes.
func StatsRouter(r chi.Router, handler *StatsHandler) {
	r.Get("/resumen", handler.Summary)
}

// AdminRouter registers the administrator dashboard and report routes.
func AdminRouter(r chi.Router, handler *StatsHandler) {
	r.Get("/dashboard/estadisticas", handler.Dashboard)
	r.Get("/dashboard/resumen", handler.AdminSummary)
	r.Get("/reportes/estadisticas", handler.StatisticsReport)
	r.Get("/reportes/materias/{subjectID}", handler.SubjectReport)
}

// AdminSummary is the compact dashboard header.
type AdminSummary struct {
	Users   types.RoleCounts `json:"users"`
	Summary types.Summary    `json:"summary"`
}

func (h *StatsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.stats.Summary(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.stats.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (h *StatsHandler) AdminSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.users.RoleCounts(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load dashboard")
		return
	}
	summary, err := h.stats.Summary(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, AdminSummary{Users: counts, Summary: summary})
}

func (h *StatsHandler) StatisticsReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.StatisticsReport(r.Context(), requestLanguage(h.bundle, r))
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to render report")
		return
	}
	writeFile(w, report, "application/pdf", "attachment", "reporte-estadisticas.pdf")
}

func (h *StatsHandler) SubjectReport(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "subjectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.reports.SubjectReport(r.Context(), id, requestLanguage(h.bundle, r))
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to render report")
		return
	}
	writeFile(w, report, "application/pdf", "attachment", fmt.Sprintf("reporte-materia-%d.pdf", id))
}
