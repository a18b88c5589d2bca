// Package docs publishes an OpenAPI description of the HTTP API.
package docs

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
	"github.com/saiset-co/dbus-service/utils"
)

const specPath = "/openapi.json"

type Manager struct {
	config *types.ServiceConfig
	logger types.Logger
	mu     sync.RWMutex
	routes map[string]types.RouteDoc
	spec   *types.OpenAPISpec
}

func NewManager(config *types.ServiceConfig, logger types.Logger) *Manager {
	return &Manager{
		config: config,
		logger: logger,
		routes: make(map[string]types.RouteDoc),
	}
}

// Add records route documentation; the spec is rebuilt on the next request.
func (dm *Manager) Add(docs ...types.RouteDoc) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for _, doc := range docs {
		dm.routes[doc.Method+" "+doc.Path] = doc
	}
	dm.spec = nil
}

func (dm *Manager) RegisterRoutes(router types.HTTPRouter) {
	path := "/docs"
	if dm.config.Docs != nil && dm.config.Docs.Path != "" {
		path = dm.config.Docs.Path
	}

	router.GET(path, dm.handleDocs)
	router.GET(specPath, dm.handleOpenAPIJSON)
}

func (dm *Manager) Spec() *types.OpenAPISpec {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.spec == nil {
		dm.spec = dm.generate()
	}
	return dm.spec
}

func (dm *Manager) generate() *types.OpenAPISpec {
	spec := &types.OpenAPISpec{
		OpenAPI: "3.0.3",
		Info: types.SpecInfo{
			Title:       dm.config.Name,
			Version:     dm.config.Version,
			Description: fmt.Sprintf("%s API documentation", dm.config.Name),
		},
		Servers: dm.generateServers(),
		Paths:   make(map[string]*types.RoutePathItem),
		Components: &types.SpecComponents{
			Schemas: map[string]*types.RouteSchema{"ErrorResponse": errorSchema()},
		},
	}

	tags := make(map[string]struct{})
	for _, route := range dm.routes {
		if route.Method != fasthttp.MethodGet {
			dm.logger.Warn("Skipping undocumentable route", zap.String("method", route.Method), zap.String("path", route.Path))
			continue
		}

		spec.Paths[route.Path] = &types.RoutePathItem{Get: dm.generateOperation(route)}

		if route.Tag != "" {
			tags[route.Tag] = struct{}{}
		}
		if route.ResponseType != nil {
			spec.Components.Schemas[typeName(route.ResponseType)] = generateSchemaFromType(route.ResponseType)
		}
	}

	for tag := range tags {
		spec.Tags = append(spec.Tags, tag)
	}
	sort.Strings(spec.Tags)

	dm.logger.Debug("OpenAPI documentation generated",
		zap.Int("paths", len(spec.Paths)),
		zap.Int("schemas", len(spec.Components.Schemas)))

	return spec
}

func (dm *Manager) generateServers() []types.SpecServer {
	host := "localhost"
	port := 80
	if dm.config.Server != nil && dm.config.Server.HTTP != nil {
		if dm.config.Server.HTTP.Host != "" {
			host = dm.config.Server.HTTP.Host
		}
		port = dm.config.Server.HTTP.Port
	}

	return []types.SpecServer{{
		URL:         fmt.Sprintf("http://%s:%d", host, port),
		Description: dm.config.Environment,
	}}
}

func (dm *Manager) generateOperation(route types.RouteDoc) *types.RouteOperation {
	operation := &types.RouteOperation{
		Summary:     route.Title,
		Description: route.Description,
		Parameters:  generateParameters(route.Path),
		Responses:   make(map[string]*types.RouteResponse),
	}
	if route.Tag != "" {
		operation.Tags = []string{route.Tag}
	}

	success := &types.RouteResponse{Description: "Successful response"}
	if route.ResponseType != nil {
		schema := generateSchemaFromType(route.ResponseType)
		success.Content = map[string]*types.RouteMediaType{
			"application/json": {Schema: schema, Example: exampleFromSchema(schema)},
		}
	}
	operation.Responses["200"] = success

	if route.NotFound {
		operation.Responses["404"] = errorResponse("Line, stop or arrival time not found")
	}
	operation.Responses["429"] = errorResponse("Too many requests")
	operation.Responses["500"] = errorResponse("Upstream or internal failure")

	return operation
}

func generateParameters(path string) []types.RouteParameter {
	var parameters []types.RouteParameter

	for _, part := range strings.Split(path, "/") {
		if !strings.HasPrefix(part, "{") || !strings.HasSuffix(part, "}") {
			continue
		}

		name := strings.Trim(part, "{}")
		parameters = append(parameters, types.RouteParameter{
			Name:        name,
			In:          "path",
			Required:    true,
			Description: fmt.Sprintf("%s parameter", name),
			Schema:      &types.RouteSchema{Type: "string"},
		})
	}

	return parameters
}

func generateSchemaFromType(t reflect.Type) *types.RouteSchema {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		return generateStructSchema(t)
	case reflect.Slice, reflect.Array:
		return &types.RouteSchema{
			Type:  "array",
			Items: generateSchemaFromType(t.Elem()),
		}
	case reflect.String:
		return &types.RouteSchema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &types.RouteSchema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &types.RouteSchema{Type: "number"}
	case reflect.Bool:
		return &types.RouteSchema{Type: "boolean"}
	default:
		return &types.RouteSchema{Type: "object"}
	}
}

func generateStructSchema(t reflect.Type) *types.RouteSchema {
	schema := &types.RouteSchema{
		Type:       "object",
		Properties: make(map[string]*types.RouteSchema),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := fieldName(field, jsonTag)
		schema.Properties[name] = generateSchemaFromField(field)
		if !strings.Contains(jsonTag, "omitempty") {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}

func generateSchemaFromField(field reflect.StructField) *types.RouteSchema {
	schema := generateSchemaFromType(field.Type)

	exampleTag := field.Tag.Get("example")
	if exampleTag == "" {
		return schema
	}

	switch schema.Type {
	case "integer":
		if val, err := strconv.Atoi(exampleTag); err == nil {
			schema.Example = val
		}
	case "boolean":
		if val, err := strconv.ParseBool(exampleTag); err == nil {
			schema.Example = val
		}
	default:
		schema.Example = exampleTag
	}

	return schema
}

func fieldName(field reflect.StructField, jsonTag string) string {
	if name, _, _ := strings.Cut(jsonTag, ","); name != "" {
		return name
	}
	return strings.ToLower(field.Name)
}

func typeName(t reflect.Type) string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

func exampleFromSchema(schema *types.RouteSchema) interface{} {
	if schema.Example != nil {
		return schema.Example
	}

	switch schema.Type {
	case "object":
		example := make(map[string]interface{}, len(schema.Properties))
		for name, prop := range schema.Properties {
			example[name] = exampleFromSchema(prop)
		}
		return example
	case "array":
		if schema.Items != nil {
			return []interface{}{exampleFromSchema(schema.Items)}
		}
		return []interface{}{}
	case "string":
		return "string"
	case "integer":
		return 1
	case "number":
		return 1.5
	case "boolean":
		return true
	default:
		return nil
	}
}

func errorSchema() *types.RouteSchema {
	return &types.RouteSchema{
		Type: "object",
		Properties: map[string]*types.RouteSchema{
			"success": {Type: "boolean", Example: false},
			"error": {
				Type: "object",
				Properties: map[string]*types.RouteSchema{
					"message": {Type: "string", Example: "line with code 99 not found"},
				},
				Required: []string{"message"},
			},
		},
		Required: []string{"success", "error"},
	}
}

func errorResponse(description string) *types.RouteResponse {
	return &types.RouteResponse{
		Description: description,
		Content: map[string]*types.RouteMediaType{
			"application/json": {Schema: errorSchema()},
		},
	}
}

func (dm *Manager) handleDocs(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString(swaggerHTML)
}

func (dm *Manager) handleOpenAPIJSON(ctx *fasthttp.RequestCtx) {
	utils.WriteJSON(ctx, fasthttp.StatusOK, dm.Spec())
}

const swaggerHTML = `<!DOCTYPE html>
<html>
<head>
   <title>API Documentation</title>
   <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@4.15.5/swagger-ui.css" />
</head>
<body>
   <div id="swagger-ui"></div>
   <script src="https://unpkg.com/swagger-ui-dist@4.15.5/swagger-ui-bundle.js"></script>
   <script>
       window.onload = function() {
           SwaggerUIBundle({ url: '` + specPath + `', dom_id: '#swagger-ui', deepLinking: true });
       };
   </script>
</body>
</html>`
