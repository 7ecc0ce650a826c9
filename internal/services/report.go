package services

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/eduaventuras/apiserver/internal/i18n"
	"github.com/eduaventuras/apiserver/internal/store"
)

// ReportService renders statistics as PDF documents.
type ReportService struct {
	stats     *StatsService
	subjects  *SubjectService
	resources ResourceRepository
	bundle    *i18n.Bundle
	now       func() time.Time
}

// NewReportService constructs the PDF report service.
func NewReportService(stats *StatsService, subjects *SubjectService, resources ResourceRepository, bundle *i18n.Bundle) *ReportService {
	return &ReportService{
		stats:     stats,
		subjects:  subjects,
		resources: resources,
		bundle:    bundle,
		now:       time.Now,
	}
}

// StatisticsReport renders the platform totals, the role breakdown and the
// most downloaded resources.
func (s *ReportService) StatisticsReport(ctx context.Context, lang string) ([]byte, error) {
	dashboard, err := s.stats.Dashboard(ctx)
	if err != nil {
		return nil, err
	}

	doc := s.newDocument(lang, s.msg("report.statistics.title", lang, nil))

	doc.section(s.msg("report.users", lang, nil))
	doc.pair(s.msg("report.students", lang, nil), dashboard.Users.Students)
	doc.pair(s.msg("report.teachers", lang, nil), dashboard.Users.Teachers)
	doc.pair(s.msg("report.admins", lang, nil), dashboard.Users.Admins)
	doc.pair(s.msg("report.users", lang, nil), dashboard.Users.Total)

	doc.section(s.msg("report.resources", lang, nil))
	doc.pair(s.msg("report.subjects", lang, nil), dashboard.Summary.TotalSubjects)
	doc.pair(s.msg("report.resources", lang, nil), dashboard.Summary.TotalResources)
	doc.pair(s.msg("report.downloads", lang, nil), dashboard.Summary.TotalDownloads)

	doc.section(s.msg("report.popular", lang, nil))
	widths := []float64{95, 55, 30}
	doc.header(widths, s.msg("report.title", lang, nil), s.msg("report.subjects", lang, nil), s.msg("report.downloads", lang, nil))
	for _, popular := range dashboard.PopularResources {
		doc.row(widths, popular.Title, popular.SubjectName, strconv.Itoa(popular.DownloadCount))
	}

	doc.section(s.msg("report.subjects", lang, nil))
	widths = []float64{140, 40}
	doc.header(widths, s.msg("report.subjects", lang, nil), s.msg("report.resources", lang, nil))
	for _, count := range dashboard.ResourcesPerSubject {
		doc.row(widths, count.SubjectName, strconv.Itoa(count.ResourceCount))
	}
	return doc.bytes()
}

// SubjectReport lists the active resources of one subject.
func (s *ReportService) SubjectReport(ctx context.Context, subjectID int, lang string) ([]byte, error) {
	subject, err := s.subjects.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	resources, err := s.resources.List(ctx, store.ResourceFilter{SubjectID: subject.ID})
	if err != nil {
		return nil, err
	}

	doc := s.newDocument(lang, s.msg("report.subject.title", lang, map[string]string{"materia": subject.Name}))
	if subject.Description != "" {
		doc.paragraph(subject.Description)
	}
	doc.pair(s.msg("report.resources", lang, nil), len(resources))

	widths := []float64{75, 45, 35, 25}
	doc.header(widths,
		s.msg("report.title", lang, nil),
		s.msg("report.uploader", lang, nil),
		s.msg("report.date", lang, nil),
		s.msg("report.downloads", lang, nil),
	)
	for _, resource := range resources {
		doc.row(widths,
			resource.Title,
			resource.UploaderName,
			resource.UploadedAt.Format("2006-01-02"),
			strconv.Itoa(resource.DownloadCount),
		)
	}
	return doc.bytes()
}

func (s *ReportService) msg(key, lang string, params map[string]string) string {
	return s.bundle.Message(key, lang, params)
}

func (s *ReportService) newDocument(lang, title string) *reportDocument {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("EduAventuras", true)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	doc := &reportDocument{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, doc.tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	generated := s.msg("report.generated_at", lang, map[string]string{"fecha": s.now().Format("2006-01-02 15:04")})
	pdf.CellFormat(0, 6, doc.tr(generated), "", 1, "L", false, 0, "")
	pdf.Ln(4)
	return doc
}

// reportDocument is a thin layout helper over fpdf.
type reportDocument struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (d *reportDocument) section(title string) {
	d.pdf.Ln(4)
	d.pdf.SetFont("Helvetica", "B", 13)
	d.pdf.CellFormat(0, 8, d.tr(title), "B", 1, "L", false, 0, "")
	d.pdf.Ln(2)
}

func (d *reportDocument) paragraph(text string) {
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.MultiCell(0, 5, d.tr(text), "", "L", false)
	d.pdf.Ln(2)
}

func (d *reportDocument) pair(label string, value int) {
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.CellFormat(60, 6, d.tr(label), "", 0, "L", false, 0, "")
	d.pdf.SetFont("Helvetica", "B", 10)
	d.pdf.CellFormat(0, 6, strconv.Itoa(value), "", 1, "L", false, 0, "")
}

func (d *reportDocument) header(widths []float64, columns ...string) {
	d.pdf.SetFont("Helvetica", "B", 10)
	d.pdf.SetFillColor(230, 236, 245)
	for i, column := range columns {
		d.pdf.CellFormat(widths[i], 7, d.tr(column), "1", 0, "L", true, 0, "")
	}
	d.pdf.Ln(-1)
}

func (d *reportDocument) row(widths []float64, cells ...string) {
	d.pdf.SetFont("Helvetica", "", 9)
	for i, cell := range cells {
		d.pdf.CellFormat(widths[i], 6, d.tr(truncateCell(cell, widths[i])), "1", 0, "L", false, 0, "")
	}
	d.pdf.Ln(-1)
}

func (d *reportDocument) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// truncateCell keeps text roughly inside a column at 9pt Helvetica.
func truncateCell(text string, width float64) string {
	limit := int(width / 1.9)
	runes := []rune(text)
	if len(runes) <= limit || limit < 4 {
		return text
	}
	return string(runes[:limit-3]) + "..."
}
