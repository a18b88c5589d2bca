package api

import (
	"context"
	"reflect"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

const (
	pathLines   = "/api/v1/lines"
	pathStops   = "/api/v1/lines/{lineCode}"
	pathArrival = "/api/v1/lines/{lineCode}/{stopCode}"
)

// Scraper is the read side of the transit pipeline served over HTTP.
type Scraper interface {
	GetBusLines(ctx context.Context) ([]types.Line, error)
	GetLineStops(ctx context.Context, lineCode string) ([]types.Stop, error)
	GetArrivalMinutes(ctx context.Context, lineCode, stopCode string) (int, error)
}

type Handlers struct {
	scraper Scraper
	logger  types.Logger
	name    string
	version string
}

type LinesResponse struct {
	Success bool         `json:"success"`
	Data    []types.Line `json:"data"`
	Count   int          `json:"count"`
}

type StopsResponse struct {
	Success bool         `json:"success"`
	Data    []types.Stop `json:"data"`
}

type ArrivalResponse struct {
	Success bool                  `json:"success"`
	Data    types.ArrivalEstimate `json:"data"`
}

type InfoResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

func NewHandlers(scraper Scraper, logger types.Logger, name, version string) *Handlers {
	return &Handlers{
		scraper: scraper,
		logger:  logger,
		name:    name,
		version: version,
	}
}

// Register mounts the API routes and the service info root.
func (h *Handlers) Register(router types.HTTPRouter) {
	router.GET("/", h.Info)
	router.GET(pathLines, h.Lines)
	router.GET(pathStops, h.Stops)
	router.GET(pathArrival, h.Arrival)
}

// Docs describes the routes mounted by Register.
func (h *Handlers) Docs() []types.RouteDoc {
	return []types.RouteDoc{
		{
			Method:       fasthttp.MethodGet,
			Path:         pathLines,
			Title:        "List bus lines",
			Description:  "Lines published on the operator landing page.",
			Tag:          "lines",
			ResponseType: reflect.TypeOf(LinesResponse{}),
		},
		{
			Method:       fasthttp.MethodGet,
			Path:         pathStops,
			Title:        "List stops of a line",
			Tag:          "lines",
			ResponseType: reflect.TypeOf(StopsResponse{}),
			NotFound:     true,
		},
		{
			Method:       fasthttp.MethodGet,
			Path:         pathArrival,
			Title:        "Next arrival at a stop",
			Description:  "Minutes until the next bus of the line reaches the stop.",
			Tag:          "arrivals",
			ResponseType: reflect.TypeOf(ArrivalResponse{}),
			NotFound:     true,
		},
	}
}

func (h *Handlers) Info(ctx *fasthttp.RequestCtx) {
	utils.WriteJSON(ctx, fasthttp.StatusOK, InfoResponse{
		Name:      h.name,
		Version:   h.version,
		Endpoints: []string{"/health", pathLines, pathStops, pathArrival},
	})
}

func (h *Handlers) Lines(ctx *fasthttp.RequestCtx) {
	lines, err := h.scraper.GetBusLines(ctx)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	if lines == nil {
		lines = []types.Line{}
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, LinesResponse{Success: true, Data: lines, Count: len(lines)})
}

func (h *Handlers) Stops(ctx *fasthttp.RequestCtx) {
	stops, err := h.scraper.GetLineStops(ctx, param(ctx, "lineCode"))
	if err != nil {
		h.fail(ctx, err)
		return
	}

	if stops == nil {
		stops = []types.Stop{}
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, StopsResponse{Success: true, Data: stops})
}

func (h *Handlers) Arrival(ctx *fasthttp.RequestCtx) {
	lineCode, stopCode := param(ctx, "lineCode"), param(ctx, "stopCode")

	minutes, err := h.scraper.GetArrivalMinutes(ctx, lineCode, stopCode)
	if err != nil {
		h.fail(ctx, err)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, ArrivalResponse{
		Success: true,
		Data:    types.NewArrivalEstimate(lineCode, stopCode, minutes),
	})
}

// fail maps not-found errors to 404 and everything else to 500, keeping the message.
func (h *Handlers) fail(ctx *fasthttp.RequestCtx, err error) {
	status := fasthttp.StatusInternalServerError
	if types.IsNotFound(err) {
		status = fasthttp.StatusNotFound
	}

	fields := []zap.Field{
		zap.String("path", string(ctx.Path())),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status == fasthttp.StatusNotFound {
		h.logger.Warn("Request failed", fields...)
	} else {
		h.logger.Error("Request failed", fields...)
	}

	utils.WriteError(ctx, status, err.Error())
}

func param(ctx *fasthttp.RequestCtx, name string) string {
	value, _ := ctx.UserValue(name).(string)
	return value
}
