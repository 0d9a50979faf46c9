package main

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/greysana/kitchen-display-system/internal/board"
	"github.com/greysana/kitchen-display-system/internal/connection"
	"github.com/greysana/kitchen-display-system/internal/drag"
	"github.com/greysana/kitchen-display-system/internal/journal"
	"github.com/greysana/kitchen-display-system/internal/model"
	"github.com/greysana/kitchen-display-system/internal/poller"
)

type statusDeps struct {
	store      *board.Store
	stages     interface{ Stages() model.StageSet }
	notifier   *board.ReadyNotifier
	controller *drag.Controller
	conn       interface{ Stats() connection.ManagerStats }
	poller     interface{ Stats() poller.Stats }
	journal    *journal.Journal // nil when no database is configured
}

type itemView struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Note     string  `json:"note,omitempty"`
}

type orderView struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	Name          string     `json:"name"`
	Ticket        string     `json:"ticket"`
	Position      int        `json:"position"`
	State         string     `json:"state"`
	Cancelled     bool       `json:"cancelled"`
	TakeAway      bool       `json:"take_away"`
	Seat          string     `json:"seat,omitempty"`
	CustomerCount int        `json:"customer_count,omitempty"`
	OrderedAt     time.Time  `json:"ordered_at"`
	Items         []itemView `json:"items"`
}

type stageView struct {
	Key    string      `json:"key"`
	Name   string      `json:"name"`
	Orders []orderView `json:"orders"`
}

type boardView struct {
	Version uint64      `json:"version"`
	Stages  []stageView `json:"stages"`
}

type noticeView struct {
	ID      string    `json:"id"`
	Ticket  string    `json:"ticket"`
	FiredAt time.Time `json:"fired_at"`
}

func newOrderView(o model.OrderRecord) orderView {
	items := make([]itemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemView{Name: it.Name, Quantity: it.Quantity, Note: it.Note}
	}
	return orderView{
		ID:            o.ID.String(),
		OrderID:       o.OrderID.String(),
		Name:          o.Name,
		Ticket:        o.Ticket,
		Position:      o.SequencePosition,
		State:         string(o.State),
		Cancelled:     o.Cancelled,
		TakeAway:      o.TakeAway,
		Seat:          o.Seat,
		CustomerCount: o.CustomerCount,
		OrderedAt:     o.OrderedAt,
		Items:         items,
	}
}

// newStatusServer builds the display's local HTTP server.
func newStatusServer(d statusDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/board", func(c echo.Context) error {
		return c.JSON(http.StatusOK, buildBoardView(d.store, d.stages.Stages()))
	})

	e.GET("/notices", func(c echo.Context) error {
		active := d.notifier.Active()
		out := make([]noticeView, len(active))
		for i, n := range active {
			out[i] = noticeView{ID: n.ID.String(), Ticket: n.Ticket, FiredAt: n.FiredAt}
		}
		return c.JSON(http.StatusOK, out)
	})

	e.GET("/health", func(c echo.Context) error {
		conn := d.conn.Stats()
		poll := d.poller.Stats()

		status := "ok"
		code := http.StatusOK
		switch {
		case poll.Halted:
			status, code = "unhealthy", http.StatusServiceUnavailable
		case conn.State != connection.StateOpen:
			status = "degraded"
		}

		components := map[string]any{
			"relay": map[string]any{
				"state":      conn.State.String(),
				"reconnects": conn.Reconnects,
				"received":   conn.Received,
				"dropped":    conn.Dropped,
			},
			"poller": map[string]any{
				"polls":        poll.Polls,
				"failures":     poll.Failures,
				"last_success": poll.LastSuccess,
				"halted":       poll.Halted,
			},
		}
		if d.journal != nil {
			js := d.journal.Stats()
			components["journal"] = map[string]any{
				"recorded": js.Recorded,
				"inserted": js.Inserts,
				"errors":   js.Errors,
				"pending":  d.journal.Pending(),
			}
		}

		return c.JSON(code, map[string]any{
			"status":     status,
			"version":    d.store.Version(),
			"components": components,
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	d.controller.Register(e.Group("/drag"))

	return e
}

// buildBoardView lists stages in definition order, with unknown-stage
// orders last.
func buildBoardView(store *board.Store, stages model.StageSet) boardView {
	snap := store.Snapshot()
	view := boardView{Version: store.Version()}

	add := func(key, name string) {
		orders := snap[key]
		sv := stageView{Key: key, Name: name, Orders: make([]orderView, len(orders))}
		for i, o := range orders {
			sv.Orders[i] = newOrderView(o)
		}
		view.Stages = append(view.Stages, sv)
	}

	for _, def := range stages.Defs() {
		add(def.Key, def.Name)
	}
	if _, ok := snap[board.UnknownStage]; ok {
		add(board.UnknownStage, "Unknown")
	}
	return view
}
