// Package openapi derives an OpenAPI 3 document from the operation registry.
package openapi

import (
	"net/http"
	"reflect"
	"strings"

	"grimm.is/speedctl/internal/operation"
)

// Document is the OpenAPI root object.
type Document struct {
	OpenAPI    string              `json:"openapi" yaml:"openapi"`
	Info       Info                `json:"info" yaml:"info"`
	Paths      map[string]PathItem `json:"paths" yaml:"paths"`
	Components Components          `json:"components" yaml:"components"`
}

type Info struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`
}

type PathItem struct {
	Get  *Operation `json:"get,omitempty" yaml:"get,omitempty"`
	Post *Operation `json:"post,omitempty" yaml:"post,omitempty"`
}

type Operation struct {
	OperationID string              `json:"operationId,omitempty" yaml:"operationId,omitempty"`
	Summary     string              `json:"summary" yaml:"summary"`
	Tags        []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Responses   map[string]Response `json:"responses" yaml:"responses"`
}

type Parameter struct {
	Name        string  `json:"name" yaml:"name"`
	In          string  `json:"in" yaml:"in"`
	Required    bool    `json:"required" yaml:"required"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Schema      *Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
}

type Response struct {
	Description string               `json:"description" yaml:"description"`
	Content     map[string]MediaType `json:"content,omitempty" yaml:"content,omitempty"`
}

type MediaType struct {
	Schema *Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
}

type Components struct {
	Schemas map[string]Schema `json:"schemas" yaml:"schemas"`
}

type Schema struct {
	Type        string            `json:"type,omitempty" yaml:"type,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items       *Schema           `json:"items,omitempty" yaml:"items,omitempty"`
	Ref         string            `json:"$ref,omitempty" yaml:"$ref,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Format      string            `json:"format,omitempty" yaml:"format,omitempty"`
	Minimum     *int64            `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Default     any               `json:"default,omitempty" yaml:"default,omitempty"`
}

// ServicePrefix is the route prefix of the operation endpoints.
const ServicePrefix = "/api/speedtest/service/"

// Generate builds the document for every operation in registry.
func Generate(registry *operation.Registry, version string) *Document {
	doc := &Document{
		OpenAPI: "3.0.3",
		Info: Info{
			Title:       "Speedctl API",
			Description: "Speedtest control plane dispatch API",
			Version:     version,
		},
		Paths:      make(map[string]PathItem),
		Components: Components{Schemas: make(map[string]Schema)},
	}

	registerSchema(doc, "Operation", operation.Operation{})
	registerSchema(doc, "Error", struct {
		Error   string `json:"error"`
		Details string `json:"details,omitempty"`
	}{})

	for _, op := range registry.All() {
		var params []Parameter
		for _, p := range op.Params {
			params = append(params, Parameter{
				Name:        p.Name,
				In:          "query",
				Description: p.Description,
				Schema:      paramSchema(p),
			})
		}
		addOperation(doc, ServicePrefix+op.Endpoint, op, params)

		// Parameterized operations also take their argument as a path segment.
		if op.Sync == operation.SyncParameterized && len(op.Params) == 1 {
			p := op.Params[0]
			addOperation(doc, ServicePrefix+op.Endpoint+"/{"+p.Name+"}", op, []Parameter{{
				Name:        p.Name,
				In:          "path",
				Required:    true,
				Description: p.Description,
				Schema:      paramSchema(p),
			}})
		}
	}

	listing := &Operation{
		OperationID: "listOperations",
		Summary:     "List registered operations",
		Tags:        []string{"speedtest"},
		Responses: map[string]Response{
			"200": jsonResponse("Registered operations", &Schema{
				Type:  "array",
				Items: &Schema{Ref: "#/components/schemas/Operation"},
			}),
		},
	}
	doc.Paths["/api/speedtest/operations"] = PathItem{Get: listing}

	return doc
}

func addOperation(doc *Document, path string, op operation.Operation, params []Parameter) {
	id := strings.ReplaceAll(op.Name, "-", "_")
	if strings.Contains(path, "{") {
		id += "_path"
	}
	errRef := &Schema{Ref: "#/components/schemas/Error"}

	build := func(method string) *Operation {
		return &Operation{
			OperationID: strings.ToLower(method) + "_" + id,
			Summary:     op.Description,
			Tags:        []string{"speedtest"},
			Parameters:  params,
			Responses: map[string]Response{
				"200": {
					Description: "Worker output, unmodified",
					Content: map[string]MediaType{
						"application/json": {},
						"text/plain":       {},
					},
				},
				"400": jsonResponse("Invalid or superfluous argument", errRef),
				"404": jsonResponse("Unknown operation", errRef),
				"429": jsonResponse("Rate limited", errRef),
				"502": {Description: "Worker reported failure; body is the worker output"},
				"503": jsonResponse("Worker unavailable", errRef),
			},
		}
	}

	doc.Paths[path] = PathItem{
		Get:  build(http.MethodGet),
		Post: build(http.MethodPost),
	}
}

func jsonResponse(desc string, schema *Schema) Response {
	return Response{
		Description: desc,
		Content:     map[string]MediaType{"application/json": {Schema: schema}},
	}
}

func paramSchema(p operation.Param) *Schema {
	s := &Schema{Type: "integer", Format: "int64", Default: p.Default}
	if p.Kind == operation.KindUint {
		zero := int64(0)
		s.Minimum = &zero
	}
	return s
}

func registerSchema(doc *Document, name string, t any) {
	doc.Components.Schemas[name] = reflectSchema(reflect.TypeOf(t))
}

func reflectSchema(t reflect.Type) Schema {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		props := make(map[string]Schema)
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			jsonTag := field.Tag.Get("json")
			if jsonTag == "-" || jsonTag == "" {
				continue
			}
			name := strings.Split(jsonTag, ",")[0]
			props[name] = reflectSchema(field.Type)
		}
		return Schema{Type: "object", Properties: props}
	case reflect.Slice:
		items := reflectSchema(t.Elem())
		return Schema{Type: "array", Items: &items}
	case reflect.Bool:
		return Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return Schema{Type: "number"}
	default:
		return Schema{Type: "string"}
	}
}
