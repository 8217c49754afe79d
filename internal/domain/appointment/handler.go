package appointment

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/qualycorpore/api/internal/platform/auth"
	"github.com/qualycorpore/api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the authenticated booking API on api and the
// anonymous claim flow on public.
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	api.GET("/appointments", h.List)
	api.GET("/appointments/:id", h.Get)
	api.PUT("/appointments", h.UpdateMany)
	api.PUT("/appointments/:id", h.Update)
	api.DELETE("/appointments/:id", h.Delete)
	api.POST("/appointments/delete", h.DeleteMany)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/appointments", h.Create)
	admin.POST("/appointments/batch", h.CreateBatch)

	public.GET("/appointments", h.PublicOpenSlots)
	public.POST("/appointments/confirm", h.PublicConfirm)
}

// createRequest accepts both snake_case and the camelCase keys the
// first-generation clients still send; pick and pickID coalesce them.
type createRequest struct {
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	StartTimeCC     string  `json:"startTime"`
	EndTime         string  `json:"end_time"`
	EndTimeCC       string  `json:"endTime"`
	DurationMinutes int     `json:"duration_minutes"`
	Duration        int     `json:"duration"`
	Status          string  `json:"status"`
	CompanyID       *string `json:"company_id"`
	CompanyIDCC     *string `json:"companyId"`
	ProviderID      *string `json:"provider_id"`
	ProviderIDCC    *string `json:"providerId"`
	EmployeeID      *string `json:"employee_id"`
	EmployeeIDCC    *string `json:"employeeId"`
	ServiceID       *string `json:"service_id"`
	ServiceIDCC     *string `json:"serviceId"`
	ClientID        *string `json:"client_id"`
	ClientIDCC      *string `json:"clientId"`
	Notes           *string `json:"notes"`
}

func pick(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func pickID(field string, a, b *string) (*uuid.UUID, error) {
	s := a
	if s == nil {
		s = b
	}
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid id", ErrValidation, field)
	}
	return &id, nil
}

func (r createRequest) toInput() (CreateInput, error) {
	in := CreateInput{
		Date:            r.Date,
		StartTime:       pick(r.StartTime, r.StartTimeCC),
		EndTime:         pick(r.EndTime, r.EndTimeCC),
		DurationMinutes: r.DurationMinutes,
		Status:          r.Status,
		Notes:           r.Notes,
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = r.Duration
	}
	var err error
	if in.CompanyID, err = pickID("company_id", r.CompanyID, r.CompanyIDCC); err != nil {
		return in, err
	}
	if in.ProviderID, err = pickID("provider_id", r.ProviderID, r.ProviderIDCC); err != nil {
		return in, err
	}
	if in.EmployeeID, err = pickID("employee_id", r.EmployeeID, r.EmployeeIDCC); err != nil {
		return in, err
	}
	if in.ServiceID, err = pickID("service_id", r.ServiceID, r.ServiceIDCC); err != nil {
		return in, err
	}
	if in.ClientID, err = pickID("client_id", r.ClientID, r.ClientIDCC); err != nil {
		return in, err
	}
	return in, nil
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in, err := req.toInput()
	if err != nil {
		return httpError(err)
	}
	a, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) List(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	f := Filters{
		Status:   c.QueryParam("status"),
		DateFrom: pick(c.QueryParam("date_from"), c.QueryParam("dateFrom")),
		DateTo:   pick(c.QueryParam("date_to"), c.QueryParam("dateTo")),
		SortDesc: c.QueryParam("sort") != "asc",
	}
	var err error
	if f.CompanyID, err = queryID(c, "company_id", "companyId"); err != nil {
		return httpError(err)
	}
	if f.ProviderID, err = queryID(c, "provider_id", "providerId"); err != nil {
		return httpError(err)
	}
	if f.EmployeeID, err = queryID(c, "employee_id", "employeeId"); err != nil {
		return httpError(err)
	}

	page := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), p, f, page.Limit, page.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
}

func queryID(c echo.Context, snake, camel string) (*uuid.UUID, error) {
	v := pick(c.QueryParam(snake), c.QueryParam(camel))
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid id", ErrValidation, snake)
	}
	return &id, nil
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	}
	p := auth.PrincipalFromContext(c.Request().Context())
	a, err := h.svc.Get(c.Request().Context(), p, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// updateRequest mirrors createRequest for the patchable fields.
type updateRequest struct {
	Date            *string `json:"date"`
	StartTime       *string `json:"start_time"`
	StartTimeCC     *string `json:"startTime"`
	EndTime         *string `json:"end_time"`
	EndTimeCC       *string `json:"endTime"`
	DurationMinutes *int    `json:"duration_minutes"`
	Duration        *int    `json:"duration"`
	Status          *string `json:"status"`
	CompanyID       *string `json:"company_id"`
	CompanyIDCC     *string `json:"companyId"`
	ProviderID      *string `json:"provider_id"`
	ProviderIDCC    *string `json:"providerId"`
	EmployeeID      *string `json:"employee_id"`
	EmployeeIDCC    *string `json:"employeeId"`
	ServiceID       *string `json:"service_id"`
	ServiceIDCC     *string `json:"serviceId"`
	ClientID        *string `json:"client_id"`
	ClientIDCC      *string `json:"clientId"`
	Notes           *string `json:"notes"`
}

func (r updateRequest) toPatch() (Patch, error) {
	p := Patch{
		Date:            r.Date,
		Status:          r.Status,
		Notes:           r.Notes,
		DurationMinutes: r.DurationMinutes,
	}
	if p.DurationMinutes == nil {
		p.DurationMinutes = r.Duration
	}
	if r.StartTime != nil {
		p.StartTime = r.StartTime
	} else {
		p.StartTime = r.StartTimeCC
	}
	if r.EndTime != nil {
		p.EndTime = r.EndTime
	} else {
		p.EndTime = r.EndTimeCC
	}
	var err error
	if p.CompanyID, err = pickID("company_id", r.CompanyID, r.CompanyIDCC); err != nil {
		return p, err
	}
	if p.ProviderID, err = pickID("provider_id", r.ProviderID, r.ProviderIDCC); err != nil {
		return p, err
	}
	if p.EmployeeID, err = pickID("employee_id", r.EmployeeID, r.EmployeeIDCC); err != nil {
		return p, err
	}
	if p.ServiceID, err = pickID("service_id", r.ServiceID, r.ServiceIDCC); err != nil {
		return p, err
	}
	if p.ClientID, err = pickID("client_id", r.ClientID, r.ClientIDCC); err != nil {
		return p, err
	}
	return p, nil
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patch, err := req.toPatch()
	if err != nil {
		return httpError(err)
	}
	p := auth.PrincipalFromContext(c.Request().Context())
	a, err := h.svc.Update(c.Request().Context(), p, id, patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type updateManyRequest struct {
	IDs   []string      `json:"ids"`
	Patch updateRequest `json:"patch"`
}

func (h *Handler) UpdateMany(c echo.Context) error {
	var req updateManyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		return httpError(err)
	}
	patch, err := req.Patch.toPatch()
	if err != nil {
		return httpError(err)
	}
	p := auth.PrincipalFromContext(c.Request().Context())
	updated, err := h.svc.UpdateMany(c.Request().Context(), p, ids, patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ids": updated})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	}
	p := auth.PrincipalFromContext(c.Request().Context())
	if err := h.svc.Delete(c.Request().Context(), p, id); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ids": []uuid.UUID{id}})
}

type deleteManyRequest struct {
	ID  *string  `json:"id"`
	IDs []string `json:"ids"`
}

func (h *Handler) DeleteMany(c echo.Context) error {
	var req deleteManyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	raw := req.IDs
	if len(raw) == 0 && req.ID != nil {
		raw = []string{*req.ID}
	}
	ids, err := parseIDs(raw)
	if err != nil {
		return httpError(err)
	}
	p := auth.PrincipalFromContext(c.Request().Context())
	deleted, err := h.svc.DeleteMany(c.Request().Context(), p, ids)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ids": deleted})
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a valid id", ErrValidation, s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type batchRequest struct {
	Date         string       `json:"date"`
	CompanyID    *string      `json:"company_id"`
	CompanyIDCC  *string      `json:"companyId"`
	ServiceID    *string      `json:"service_id"`
	ServiceIDCC  *string      `json:"serviceId"`
	ProviderIDs  []string     `json:"provider_ids"`
	ProvidersCC  []string     `json:"providerIds"`
	Window       windowInput  `json:"window"`
	SlotMinutes  int          `json:"slot_minutes"`
	SlotMinsCC   int          `json:"slotMinutes"`
	Chairs       int          `json:"chairs"`
	Breaks       []BreakInput `json:"breaks"`
	Notes        *string      `json:"notes"`
}

type windowInput struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (h *Handler) CreateBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rawProviders := req.ProviderIDs
	if len(rawProviders) == 0 {
		rawProviders = req.ProvidersCC
	}
	providerIDs, err := parseIDs(rawProviders)
	if err != nil {
		return httpError(err)
	}
	in := BatchInput{
		Date:        req.Date,
		ProviderIDs: providerIDs,
		WindowStart: req.Window.Start,
		WindowEnd:   req.Window.End,
		SlotMinutes: req.SlotMinutes,
		Chairs:      req.Chairs,
		Breaks:      req.Breaks,
		Notes:       req.Notes,
	}
	if in.SlotMinutes == 0 {
		in.SlotMinutes = req.SlotMinsCC
	}
	if in.CompanyID, err = pickID("company_id", req.CompanyID, req.CompanyIDCC); err != nil {
		return httpError(err)
	}
	if in.ServiceID, err = pickID("service_id", req.ServiceID, req.ServiceIDCC); err != nil {
		return httpError(err)
	}
	result, err := h.svc.CreateBatch(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	status := http.StatusCreated
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, result)
}

type confirmRequest struct {
	AppointmentID   string  `json:"appointment_id"`
	AppointmentIDCC string  `json:"appointmentId"`
	CompanyToken    string  `json:"company_token"`
	CompanyTokenCC  string  `json:"companyToken"`
	CompanyID       string  `json:"company_id"`
	CompanyIDCC     string  `json:"companyId"`
	EmployeeID      *string `json:"employee_id"`
	EmployeeIDCC    *string `json:"employeeId"`
	Notes           *string `json:"notes"`
}

func (h *Handler) PublicConfirm(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rawID := pick(req.AppointmentID, req.AppointmentIDCC)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return httpError(fmt.Errorf("%w: appointment_id is not a valid id", ErrValidation))
	}
	token := pick(pick(req.CompanyToken, req.CompanyTokenCC), pick(req.CompanyID, req.CompanyIDCC))
	if token == "" {
		return httpError(fmt.Errorf("%w: company token required", ErrValidation))
	}
	in := ClaimInput{AppointmentID: id, CompanyToken: token, Notes: req.Notes}
	if in.EmployeeID, err = pickID("employee_id", req.EmployeeID, req.EmployeeIDCC); err != nil {
		return httpError(err)
	}
	a, err := h.svc.PublicClaim(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) PublicOpenSlots(c echo.Context) error {
	token := pick(
		pick(c.QueryParam("company_token"), c.QueryParam("companyToken")),
		pick(c.QueryParam("company_id"), c.QueryParam("companyId")))
	if token == "" {
		return httpError(fmt.Errorf("%w: company token required", ErrValidation))
	}
	items, err := h.svc.PublicOpenSlots(c.Request().Context(), token)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

// httpError maps domain sentinels to API status codes. Anything
// unrecognized is logged by the request middleware and answered with a
// generic message.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSlotConflict):
		return echo.NewHTTPError(http.StatusConflict, ErrSlotConflict.Error())
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidReference),
		errors.Is(err, ErrStatusTransition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
