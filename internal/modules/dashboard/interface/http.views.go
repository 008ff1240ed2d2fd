package transport

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"bizdash/internal/modules/dashboard/domain"
	resdomain "bizdash/internal/modules/resources/domain"
	"bizdash/internal/modules/selection"
	"bizdash/internal/shared/httputil"
)

// DashboardHandler serves the REST surface of a dashboard session.
type DashboardHandler struct {
	errors *httputil.ErrorMapper
	logger *slog.Logger
}

func NewDashboardHandler(logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{errors: newErrorMapper(), logger: logger}
}

func (h *DashboardHandler) fail(c echo.Context, op string, err error) error {
	mapped := h.errors.HTTPError(err)
	if he, ok := mapped.(*echo.HTTPError); ok && he.Code >= http.StatusInternalServerError {
		h.logger.Warn("dashboard request failed", slog.String("op", op), slog.String("path", c.Path()), slog.Int("status", he.Code), slog.Any("error", err))
	}
	return mapped
}

// SelectionResponse is the JSON shape of the selection.
type SelectionResponse struct {
	Version   uint64             `json:"version"`
	Selection selection.Snapshot `json:"selection"`
}

// ListViews returns every view's state.
func (h *DashboardHandler) ListViews(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session.ViewStates())
}

func (h *DashboardHandler) GetView(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	view, err := domain.ParseView(c.Param("view"))
	if err != nil {
		return h.fail(c, "get view", err)
	}
	state, err := session.ViewState(view)
	if err != nil {
		return h.fail(c, "get view", err)
	}
	return c.JSON(http.StatusOK, state)
}

func (h *DashboardHandler) SetViewQuery(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	view, err := domain.ParseView(c.Param("view"))
	if err != nil {
		return h.fail(c, "set view query", err)
	}
	var q resdomain.PagedQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if q.Page < 0 || q.Size < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "page and size must not be negative")
	}
	if err := session.SetPage(view, q); err != nil {
		return h.fail(c, "set view query", err)
	}
	state, err := session.ViewState(view)
	if err != nil {
		return h.fail(c, "set view query", err)
	}
	return c.JSON(http.StatusOK, state)
}

func (h *DashboardHandler) RefetchView(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	view, err := domain.ParseView(c.Param("view"))
	if err != nil {
		return h.fail(c, "refetch view", err)
	}
	if err := session.Refetch(view); err != nil {
		return h.fail(c, "refetch view", err)
	}
	state, err := session.ViewState(view)
	if err != nil {
		return h.fail(c, "refetch view", err)
	}
	return c.JSON(http.StatusAccepted, state)
}

func (h *DashboardHandler) GetSelection(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, selectionOf(session.Selection()))
}

func (h *DashboardHandler) PutSelection(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	scope, err := selection.ParseScope(c.Param("scope"))
	if err != nil {
		return h.fail(c, "put selection", err)
	}
	var ref selection.Ref
	if err := c.Bind(&ref); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ref.ID = strings.TrimSpace(ref.ID)
	if ref.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing id")
	}
	session.Select(scope, &ref)
	return c.JSON(http.StatusOK, selectionOf(session.Selection()))
}

func (h *DashboardHandler) DeleteSelection(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	raw := c.Param("scope")
	if strings.TrimSpace(raw) == "" {
		session.ResetAllSelection()
		return c.JSON(http.StatusOK, selectionOf(session.Selection()))
	}
	scope, err := selection.ParseScope(raw)
	if err != nil {
		return h.fail(c, "delete selection", err)
	}
	session.ResetSelection(scope)
	return c.JSON(http.StatusOK, selectionOf(session.Selection()))
}

func (h *DashboardHandler) OpenDialog(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	var body domain.DialogCommand
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(body.Mode) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing mode")
	}
	session.OpenDialog(strings.TrimSpace(body.Mode), body.Entity)
	return c.JSON(http.StatusOK, selectionOf(session.Selection()))
}

func (h *DashboardHandler) CloseDialog(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	session.CloseDialog()
	return c.JSON(http.StatusOK, selectionOf(session.Selection()))
}

func selectionOf(store *selection.Store) SelectionResponse {
	return SelectionResponse{Version: store.Version(), Selection: store.Snapshot()}
}
