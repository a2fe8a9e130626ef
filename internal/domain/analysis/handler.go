package analysis

import (
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/auth"
	"github.com/roudayn-kouka/App4Doctors/pkg/pagination"
)

// FormFileField is the multipart field carrying the uploaded file.
const FormFileField = "analysisFile"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/analyses", auth.RequireRole(auth.RoleDoctor))
	g.GET("", h.ListAnalyses)
	g.GET("/stats/overview", h.GetStats)
	g.GET("/:id", h.GetAnalysis)
	g.GET("/:id/download", h.DownloadAnalysis)
	g.POST("/upload", h.UploadAnalysis)
	g.PUT("/:id/process", h.ProcessAnalysis)
	g.PUT("/:id/review", h.ReviewAnalysis)
	g.PUT("/:id", h.UpdateAnalysis)
	g.DELETE("/:id", h.DeleteAnalysis)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) ListAnalyses(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	filter := ListFilter{
		Status: c.QueryParam("status"),
		Type:   c.QueryParam("type"),
		Search: c.QueryParam("search"),
	}
	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = &pid
	}

	items, total, err := h.svc.List(c.Request().Context(), doctorID, filter, pg.Limit, pg.Offset())
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Analysis{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetAnalysis(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), doctorID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UploadAnalysis(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile(FormFileField)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no file uploaded")
	}
	patientID, err := uuid.Parse(c.FormValue("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "valid patient ID is required")
	}

	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
	}
	defer src.Close()

	a, err := h.svc.Upload(c.Request().Context(), doctorID, UploadInput{
		PatientID:   patientID,
		Type:        c.FormValue("type"),
		Priority:    c.FormValue("priority"),
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
	}, src)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ProcessAnalysis(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Process(c.Request().Context(), doctorID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ReviewAnalysis(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in ReviewInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Review(c.Request().Context(), doctorID, id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAnalysis(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in MetaInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.UpdateMeta(c.Request().Context(), doctorID, id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAnalysis(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), doctorID, id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetStats(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	stats, err := h.svc.Stats(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) DownloadAnalysis(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rc, a, err := h.svc.Open(c.Request().Context(), doctorID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}))
	return c.Stream(http.StatusOK, a.ContentType, rc)
}
