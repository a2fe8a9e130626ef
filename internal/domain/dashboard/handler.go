package dashboard

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard", auth.RequireRole(auth.RoleDoctor))
	g.GET("/stats", h.GetStats)
	g.GET("/recent-activity", h.GetRecentActivity)
	g.GET("/upcoming-appointments", h.GetUpcomingAppointments)
	g.GET("/alerts", h.GetAlerts)
	g.GET("/charts/appointments", h.GetAppointmentChart)
	g.GET("/charts/vitals", h.GetVitalsChart)
}

// intParam reads an optional positive integer query parameter.
func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
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

func (h *Handler) GetRecentActivity(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	items, err := h.svc.RecentActivity(c.Request().Context(), doctorID, limit)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetUpcomingAppointments(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	items, err := h.svc.UpcomingAppointments(c.Request().Context(), doctorID, limit)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetAlerts(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	alerts, err := h.svc.Alerts(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, alerts)
}

func (h *Handler) GetAppointmentChart(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	days, err := intParam(c, "days")
	if err != nil {
		return err
	}
	points, err := h.svc.AppointmentChart(c.Request().Context(), doctorID, days)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, points)
}

func (h *Handler) GetVitalsChart(c echo.Context) error {
	doctorID, err := auth.DoctorID(c)
	if err != nil {
		return err
	}
	days, err := intParam(c, "days")
	if err != nil {
		return err
	}
	var patientID *uuid.UUID
	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = &pid
	}
	points, err := h.svc.VitalsChart(c.Request().Context(), doctorID, patientID, days)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, points)
}
