package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/model"
)

type errorResp struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Fields  []model.FieldError `json:"fields,omitempty"`
}

// respondError maps the model error taxonomy to a status code. Unknown
// errors are logged and hidden behind a generic 500.
func respondError(c echo.Context, log *slog.Logger, err error) error {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, errorResp{Error: "validation", Message: "invalid input", Fields: ve.Errors})
	case errors.Is(err, model.ErrValidation):
		return c.JSON(http.StatusBadRequest, errorResp{Error: "validation", Message: err.Error()})
	case errors.Is(err, model.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorResp{Error: "forbidden", Message: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResp{Error: "not_found", Message: err.Error()})
	case errors.Is(err, model.ErrInvalidState):
		return c.JSON(http.StatusConflict, errorResp{Error: "invalid_state", Message: err.Error()})
	case errors.Is(err, model.ErrConflict):
		return c.JSON(http.StatusConflict, errorResp{Error: "conflict", Message: err.Error()})
	case errors.Is(err, model.ErrAlreadyExists):
		return c.JSON(http.StatusConflict, errorResp{Error: "already_exists", Message: err.Error()})
	}
	log.ErrorContext(c.Request().Context(), "request failed",
		slog.String("route", c.Path()), slog.String("error", err.Error()))
	return c.JSON(http.StatusInternalServerError, errorResp{Error: "internal", Message: "internal error"})
}

func badRequest(c echo.Context, field, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResp{
		Error: "validation", Message: "invalid input",
		Fields: []model.FieldError{{Field: field, Message: msg}},
	})
}
