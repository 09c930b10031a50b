package scheduling

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/appointments/internal/platform/auth"
	"github.com/ehr/appointments/pkg/apperr"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "scheduling_http").Logger()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Booking – admin, patient
	api.POST("/appointments", h.CreateAppointment, auth.RequireRole(auth.RolePatient))

	// Read endpoints – admin, doctor, secretary
	readGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleSecretary))
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/:id", h.GetAppointment)

	// Front desk transitions – admin, secretary
	deskGroup := api.Group("", auth.RequireRole(auth.RoleSecretary))
	deskGroup.PUT("/appointments/:id", h.CancelAppointment)
	deskGroup.POST("/appointments/:id/cancel", h.CancelAppointment)
	deskGroup.DELETE("/appointments/:id", h.DeleteAppointment)
}

type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Entity string `json:"entity,omitempty"`
}

// respondError writes err using its kind. Storage and internal failures are
// logged and replaced with a generic message.
func (h *Handler) respondError(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	body := errorBody{Kind: string(kind)}

	var ae *apperr.Error
	if apperr.Exposed(kind) && errors.As(err, &ae) {
		body.Error = ae.Message
		body.Entity = ae.Entity
	} else {
		h.logger.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("request failed")
		body.Error = "internal server error"
	}
	return c.JSON(apperr.HTTPStatus(kind), body)
}

func caller(c echo.Context) (Caller, error) {
	ctx := c.Request().Context()
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return Caller{}, echo.NewHTTPError(http.StatusUnauthorized, "missing caller identity")
	}
	return Caller{Identity: id, Credential: auth.CredentialFromContext(ctx)}, nil
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return h.respondError(c, apperr.Validation("request body must be a JSON object"))
	}
	a, err := h.svc.Create(c.Request().Context(), req, who)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	params := ListParams{
		DoctorID:  queryParam(c, "doctor_id", "id_doctor"),
		CenterID:  queryParam(c, "center_id", "id_center"),
		PatientID: queryParam(c, "patient_id", "id_patient"),
		Status:    c.QueryParam("status"),
		From:      queryParam(c, "date_from", "from"),
		To:        queryParam(c, "date_to", "to"),
	}
	items, err := h.svc.List(c.Request().Context(), params, who.Identity)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// queryParam returns the first non-empty value among names.
func queryParam(c echo.Context, names ...string) string {
	for _, n := range names {
		if v := c.QueryParam(n); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return h.respondError(c, apperr.Validation("invalid appointment id"))
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return h.respondError(c, apperr.Validation("invalid appointment id"))
	}
	if _, err := h.svc.Cancel(c.Request().Context(), id, who); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "appointment cancelled"})
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return h.respondError(c, apperr.Validation("invalid appointment id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id, who); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "appointment deleted"})
}
