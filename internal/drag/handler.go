package drag

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/greysana/kitchen-display-system/internal/api"
	"github.com/greysana/kitchen-display-system/internal/model"
)

type beginRequest struct {
	ID model.ID `json:"id"`
}

type dropRequest struct {
	Source string `json:"source"`
	Dest   string `json:"dest"`
	Index  *int   `json:"index"` // Omitted means dropped on the stage itself
}

type dropResponse struct {
	Kind       Kind   `json:"kind"`
	ID         string `json:"id,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Position   int    `json:"position"`
	Transition string `json:"transition,omitempty"`
	WriteError string `json:"write_error,omitempty"`
}

// Register mounts the drag endpoints on g.
func (c *Controller) Register(g *echo.Group) {
	g.POST("/begin", c.handleBegin)
	g.POST("/drop", c.handleDrop)
	g.POST("/end", c.handleEnd)
}

func (c *Controller) handleBegin(ctx echo.Context) error {
	var req beginRequest
	if err := ctx.Bind(&req); err != nil || req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}

	switch err := c.BeginDrag(req.ID); {
	case errors.Is(err, ErrSessionActive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return err
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "dragging", "id": req.ID.String()})
}

func (c *Controller) handleDrop(ctx echo.Context) error {
	var req dropRequest
	if err := ctx.Bind(&req); err != nil || req.Source == "" || req.Dest == "" {
		c.EndDrag()
		return echo.NewHTTPError(http.StatusBadRequest, "source and dest are required")
	}
	index := -1
	if req.Index != nil {
		index = *req.Index
	}

	res, err := c.Drop(ctx.Request().Context(), req.Source, req.Dest, index)
	if err != nil && api.IsAuthError(err) {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return err
	}

	resp := dropResponse{
		Kind:       res.Kind,
		Position:   res.Position,
		Transition: string(res.Transition),
	}
	if res.Kind != KindIgnored {
		resp.ID = res.Order.ID.String()
		resp.Stage = res.Order.Stage
	}
	if res.WriteErr != nil {
		resp.WriteError = res.WriteErr.Error()
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (c *Controller) handleEnd(ctx echo.Context) error {
	c.EndDrag()
	return ctx.JSON(http.StatusOK, map[string]string{"status": "idle"})
}
