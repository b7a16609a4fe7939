package worklist

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aria-health/aria/internal/platform/session"
	"github.com/aria-health/aria/pkg/pagination"
)

// exportHeader is the CSV column order for export, mirroring the JSON
// projection field order.
var exportHeader = []string{
	"mrn", "first_name", "last_name", "dob", "sex",
	"modality", "description", "body_part", "scheduled_time",
	"report_status", "critical_flag", "priority", "ordering_clinician",
}

type Handler struct {
	svc      *Service
	importer *Importer
}

func NewHandler(svc *Service, importer *Importer) *Handler {
	return &Handler{svc: svc, importer: importer}
}

// RegisterRoutes registers the worklist endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/worklist", h.Worklist)
	api.GET("/patient/:id", h.GetPatient)
	api.GET("/study/:id", h.GetStudy)
	api.POST("/report", h.CreateReport)
	api.PUT("/report/:id", h.UpdateReport)
	api.GET("/reports", h.ListReports)
	api.GET("/stats", h.Stats)
	api.GET("/export", h.Export)
	api.POST("/import", h.Import)
}

func (h *Handler) Worklist(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := WorklistFilter{
		Modality: c.QueryParam("modality"),
		Status:   c.QueryParam("status"),
		Priority: c.QueryParam("priority"),
		Search:   c.QueryParam("search"),
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	}

	items, total, err := h.svc.Worklist(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*WorklistItem{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"studies": items,
		"total":   total,
	})
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetStudy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.svc.GetStudy(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "study not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if detail.Series == nil {
		detail.Series = []*Series{}
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) CreateReport(c echo.Context) error {
	var r Report
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	author := session.Username(c)
	if err := h.svc.CreateReport(c.Request().Context(), author, &r); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "study not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"report_id": r.ReportID,
		"message":   "Report saved",
	})
}

func (h *Handler) UpdateReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var r Report
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ReportID = id

	// An unknown report id yields zero rows affected, not an error.
	affected, err := h.svc.UpdateReport(c.Request().Context(), &r)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":       "Report updated",
		"rows_affected": affected,
	})
}

func (h *Handler) ListReports(c echo.Context) error {
	reports, err := h.svc.ListReports(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if reports == nil {
		reports = []*ReportListItem{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"reports": reports})
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Export(c echo.Context) error {
	rows, err := h.svc.Export(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if c.QueryParam("fmt") == "csv" {
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename=aria_worklist.csv`)
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().WriteHeader(http.StatusOK)
		return writeExportCSV(c.Response(), rows)
	}

	if rows == nil {
		rows = []*ExportRow{}
	}
	return c.JSON(http.StatusOK, rows)
}

func writeExportCSV(w io.Writer, rows []*ExportRow) error {
	// Zero rows produce an empty body, not an error.
	if len(rows) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.MRN, r.FirstName, r.LastName, r.DOB, r.Sex,
			r.Modality, r.Description, r.BodyPart, r.ScheduledTime.Format("2006-01-02 15:04"),
			r.ReportStatus, strconv.FormatBool(r.CriticalFlag), r.Priority, r.OrderingClinician,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (h *Handler) Import(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.importer.Import(c.Request().Context(), fileHeader.Filename, data)
	if errors.Is(err, ErrBadPayload) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
