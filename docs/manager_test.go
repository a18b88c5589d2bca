package docs

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/dbus-service/logger"
	"github.com/saiset-co/dbus-service/types"
)

type arrival struct {
	Success bool                  `json:"success"`
	Data    types.ArrivalEstimate `json:"data"`
	Note    string                `json:"note,omitempty"`
	secret  string
}

type routeRecorder map[string]fasthttp.RequestHandler

func (r routeRecorder) GET(path string, handler fasthttp.RequestHandler) { r[path] = handler }

func (r routeRecorder) Handle(method, path string, handler fasthttp.RequestHandler) {
	r[method+" "+path] = handler
}

func newManager() *Manager {
	return NewManager(&types.ServiceConfig{
		Name:        "dbus-service",
		Version:     "1.0.0",
		Environment: "test",
		Server:      &types.ServerConfig{HTTP: &types.HTTPConfig{Port: 8080}},
		Docs:        &types.DocsConfig{Enabled: true, Path: "/docs"},
	}, logger.NewNop())
}

func TestSpecFromRoutes(t *testing.T) {
	dm := newManager()
	dm.Add(types.RouteDoc{
		Method:       fasthttp.MethodGet,
		Path:         "/api/v1/lines/{lineCode}/{stopCode}",
		Title:        "Next arrival",
		Tag:          "arrivals",
		ResponseType: reflect.TypeOf(arrival{}),
		NotFound:     true,
	}, types.RouteDoc{
		Method: fasthttp.MethodPost,
		Path:   "/ignored",
	})

	spec := dm.Spec()
	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "dbus-service", spec.Info.Title)
	assert.Equal(t, "http://localhost:8080", spec.Servers[0].URL)
	assert.Equal(t, []string{"arrivals"}, spec.Tags)
	require.Len(t, spec.Paths, 1)

	op := spec.Paths["/api/v1/lines/{lineCode}/{stopCode}"].Get
	require.NotNil(t, op)
	require.Len(t, op.Parameters, 2)
	assert.Equal(t, "lineCode", op.Parameters[0].Name)
	assert.Equal(t, "stopCode", op.Parameters[1].Name)
	assert.Contains(t, op.Responses, "404")
	assert.Contains(t, op.Responses, "429")

	schema := spec.Components.Schemas["arrival"]
	require.NotNil(t, schema)
	assert.Equal(t, []string{"success", "data"}, schema.Required)
	assert.NotContains(t, schema.Properties, "secret")

	data := schema.Properties["data"]
	assert.Equal(t, "integer", data.Properties["arrival_time"].Type)
	assert.Equal(t, 7, data.Properties["arrival_time"].Example)
	assert.Equal(t, "minutes", data.Properties["unit"].Example)

	example := op.Responses["200"].Content["application/json"].Example.(map[string]interface{})
	assert.Equal(t, 7, example["data"].(map[string]interface{})["arrival_time"])
}

func TestSpecRebuiltAfterAdd(t *testing.T) {
	dm := newManager()
	first := dm.Spec()
	assert.Empty(t, first.Paths)
	assert.Same(t, first, dm.Spec())

	dm.Add(types.RouteDoc{Method: fasthttp.MethodGet, Path: "/api/v1/lines"})
	assert.Len(t, dm.Spec().Paths, 1)
}

func TestRoutes(t *testing.T) {
	dm := newManager()
	router := routeRecorder{}
	dm.RegisterRoutes(router)

	require.Contains(t, router, "/docs")
	require.Contains(t, router, "/openapi.json")

	var ctx fasthttp.RequestCtx
	router["/openapi.json"](&ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"openapi":"3.0.3"`)

	ctx.Response.Reset()
	router["/docs"](&ctx)
	assert.Contains(t, string(ctx.Response.Body()), "swagger-ui")
}
