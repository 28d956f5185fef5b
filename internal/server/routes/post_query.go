package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/kasetlab/agrirag/internal/server/middleware"
	"github.com/kasetlab/agrirag/pkg/logger"
	"github.com/kasetlab/agrirag/pkg/rag"
)

// QueryHandler runs the advisory pipeline for one question. A null answer in
// the response means the caller should route the query to its general chat
// handler instead.
func QueryHandler(c echo.Context) error {
	type turnPayload struct {
		Role     string   `json:"role" validate:"required,oneof=user assistant"`
		Text     string   `json:"text" validate:"required"`
		Products []string `json:"products"`
	}

	type queryParams struct {
		Query   string        `json:"query" validate:"required"`
		History []turnPayload `json:"history" validate:"dive"`
		UserID  string        `json:"user_id"`
	}

	params := new(queryParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	history := make([]rag.Turn, 0, len(params.History))
	for _, turn := range params.History {
		history = append(history, rag.Turn{
			Role:     turn.Role,
			Text:     turn.Text,
			Products: turn.Products,
		})
	}

	pipeline := c.(*middleware.AppContext).App.Pipeline
	resp := pipeline.Process(c.Request().Context(), params.Query, history)

	logger.Debug("query handled",
		"user_id", params.UserID,
		"intent", resp.Intent,
		"answered", resp.Answer != nil,
	)
	return c.JSON(http.StatusOK, resp)
}
