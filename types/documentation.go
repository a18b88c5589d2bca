package types

import (
	"reflect"
)

// RouteDoc describes one documented endpoint. ResponseType is the success payload.
type RouteDoc struct {
	Method       string
	Path         string
	Title        string
	Description  string
	Tag          string
	ResponseType reflect.Type
	NotFound     bool
}

type OpenAPISpec struct {
	OpenAPI    string                    `json:"openapi"`
	Info       SpecInfo                  `json:"info"`
	Servers    []SpecServer              `json:"servers"`
	Paths      map[string]*RoutePathItem `json:"paths"`
	Components *SpecComponents           `json:"components"`
	Tags       []string                  `json:"tags"`
}

type SpecInfo struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

type SpecServer struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

type SpecComponents struct {
	Schemas map[string]*RouteSchema `json:"schemas,omitempty"`
}

type RoutePathItem struct {
	Get *RouteOperation `json:"get,omitempty"`
}

type RouteOperation struct {
	Summary     string                    `json:"summary,omitempty"`
	Description string                    `json:"description,omitempty"`
	Tags        []string                  `json:"tags,omitempty"`
	Parameters  []RouteParameter          `json:"parameters,omitempty"`
	Responses   map[string]*RouteResponse `json:"responses"`
}

type RouteParameter struct {
	Name        string       `json:"name"`
	In          string       `json:"in"`
	Required    bool         `json:"required,omitempty"`
	Description string       `json:"description,omitempty"`
	Schema      *RouteSchema `json:"schema,omitempty"`
	Example     interface{}  `json:"example,omitempty"`
}

type RouteMediaType struct {
	Schema  *RouteSchema `json:"schema,omitempty"`
	Example interface{}  `json:"example,omitempty"`
}

type RouteResponse struct {
	Description string                     `json:"description"`
	Content     map[string]*RouteMediaType `json:"content,omitempty"`
}

type RouteSchema struct {
	Type        string                  `json:"type,omitempty"`
	Description string                  `json:"description,omitempty"`
	Properties  map[string]*RouteSchema `json:"properties,omitempty"`
	Required    []string                `json:"required,omitempty"`
	Items       *RouteSchema            `json:"items,omitempty"`
	Example     interface{}             `json:"example,omitempty"`
}
