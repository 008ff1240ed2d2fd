package transport

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	resdomain "bizdash/internal/modules/resources/domain"
)

type attachRequest struct {
	AttachmentID string `json:"attachmentId"`
}

func (h *DashboardHandler) CreateSale(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	var input resdomain.SaleInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sale, err := session.CreateSale(c.Request().Context(), input)
	if err != nil {
		return h.fail(c, "create sale", err)
	}
	return c.JSON(http.StatusCreated, sale)
}

func (h *DashboardHandler) UpdateSale(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	var input resdomain.SaleInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sale, err := session.UpdateSale(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return h.fail(c, "update sale", err)
	}
	return c.JSON(http.StatusOK, sale)
}

func (h *DashboardHandler) DeleteSale(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	if err := session.DeleteSale(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, "delete sale", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *DashboardHandler) RecordPayment(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	var input resdomain.PaymentInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if input.Amount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	payment, err := session.RecordPayment(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return h.fail(c, "record payment", err)
	}
	return c.JSON(http.StatusCreated, payment)
}

func (h *DashboardHandler) AttachToSale(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	var body attachRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	attachment, err := session.AttachToSale(c.Request().Context(), c.Param("id"), strings.TrimSpace(body.AttachmentID))
	if err != nil {
		return h.fail(c, "attach to sale", err)
	}
	return c.JSON(http.StatusCreated, attachment)
}

func (h *DashboardHandler) SendMessage(c echo.Context) error {
	session, err := sessionFrom(c)
	if err != nil {
		return err
	}
	var input resdomain.MessageInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(input.Body) == "" && strings.TrimSpace(input.AttachmentID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message needs a body or an attachment")
	}
	message, err := session.SendMessage(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return h.fail(c, "send message", err)
	}
	return c.JSON(http.StatusCreated, message)
}
