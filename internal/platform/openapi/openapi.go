package openapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hl7readable/internal/platform/hl7v2"
)

// Generator builds an OpenAPI 3.0 document for the decode API from the
// segment registry in use.
type Generator struct {
	registry hl7v2.Registry
	version  string
	baseURL  string
	archive  bool
}

// NewGenerator creates a new OpenAPI spec generator.
func NewGenerator(registry hl7v2.Registry, version, baseURL string) *Generator {
	if registry == nil {
		registry = hl7v2.DefaultRegistry()
	}
	return &Generator{registry: registry, version: version, baseURL: baseURL}
}

// WithArchive documents the archive listing endpoint.
func (g *Generator) WithArchive() *Generator {
	g.archive = true
	return g
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := map[string]interface{}{
		"/api/v1/hl7v2/decode": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Decode an HL7 v2 message",
				"operationId": "decodeMessage",
				"tags":        []string{"hl7v2"},
				"parameters": []map[string]interface{}{
					{
						"name":        "diagnostics",
						"in":          "query",
						"required":    false,
						"description": "Wrap the result with skipped lines, duplicate singletons and field warnings",
						"schema":      map[string]string{"type": "boolean"},
					},
				},
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"text/plain": map[string]interface{}{
							"schema": map[string]string{"type": "string"},
						},
					},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Decoded message, or a Report when diagnostics=true",
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{
									"oneOf": []map[string]string{
										{"$ref": "#/components/schemas/DecodeResult"},
										{"$ref": "#/components/schemas/Report"},
									},
								},
							},
						},
					},
					"400": buildResponse("Empty request body", "#/components/schemas/Error"),
					"413": buildResponse("Request body too large", "#/components/schemas/Error"),
				},
			},
		},
	}

	if g.archive {
		paths["/api/v1/hl7v2/messages"] = map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "List archived messages, newest first",
				"operationId": "listMessages",
				"tags":        []string{"archive"},
				"parameters": []map[string]interface{}{
					{"name": "limit", "in": "query", "schema": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100}},
					{"name": "offset", "in": "query", "schema": map[string]interface{}{"type": "integer", "minimum": 0}},
				},
				"responses": map[string]interface{}{
					"200": buildResponse("Page of archived messages", "#/components/schemas/ArchivePage"),
					"500": buildResponse("Archive unavailable", "#/components/schemas/Error"),
				},
			},
		}
	}

	spec := map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "HL7 v2 Decode API",
			"version":     g.version,
			"description": "Decodes pipe-delimited HL7 v2 messages into keyed JSON records",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": g.buildComponentSchemas(),
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]string{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
		"security": []map[string][]string{
			{"bearerAuth": {}},
		},
	}

	return spec
}

func buildResponse(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"$ref": schemaRef,
				},
			},
		},
	}
}

// buildComponentSchemas describes one schema per result key plus the shared
// composite types. Record layouts are taken from what each decoder produces
// for a segment with no fields, so custom decoders are documented too.
func (g *Generator) buildComponentSchemas() map[string]interface{} {
	schemas := map[string]interface{}{
		"Name":        buildNameSchema(),
		"Address":     buildAddressSchema(),
		"Diagnostics": buildDiagnosticsSchema(),
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"error": map[string]string{"type": "string"},
			},
		},
	}

	resultProps := make(map[string]interface{})
	for _, tag := range g.registry.Tags() {
		d, ok := g.registry.Lookup(tag)
		if !ok {
			continue
		}
		schemas[d.Key] = recordSchema(tag, d.Decode(hl7v2.SplitFields(tag)))

		ref := map[string]interface{}{"$ref": "#/components/schemas/" + d.Key}
		if d.Kind == hl7v2.Repeatable {
			resultProps[d.Key] = map[string]interface{}{"type": "array", "items": ref}
		} else {
			resultProps[d.Key] = ref
		}
	}

	schemas["DecodeResult"] = map[string]interface{}{
		"type":        "object",
		"description": "Only segments present in the message appear as keys",
		"properties":  resultProps,
	}
	schemas["Report"] = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"result":      map[string]string{"$ref": "#/components/schemas/DecodeResult"},
			"diagnostics": map[string]string{"$ref": "#/components/schemas/Diagnostics"},
		},
	}

	if g.archive {
		schemas["ArchivedMessage"] = buildArchivedMessageSchema()
		schemas["ArchivePage"] = buildArchivePageSchema()
	}

	return schemas
}

func recordSchema(tag string, sample hl7v2.Record) map[string]interface{} {
	props := make(map[string]interface{}, len(sample))
	for field, v := range sample {
		props[field] = valueSchema(v)
	}
	return map[string]interface{}{
		"type":        "object",
		"description": "Decoded " + tag + " segment",
		"properties":  props,
	}
}

func valueSchema(v any) map[string]interface{} {
	switch v.(type) {
	case hl7v2.Name:
		return map[string]interface{}{"$ref": "#/components/schemas/Name"}
	case hl7v2.Address:
		return map[string]interface{}{"$ref": "#/components/schemas/Address"}
	case string:
		return map[string]interface{}{"type": "string"}
	default:
		return map[string]interface{}{}
	}
}

func buildNameSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"family": map[string]interface{}{"type": "string"},
			"given":  map[string]interface{}{"type": "string"},
		},
	}
}

func buildAddressSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"line":       map[string]interface{}{"type": "string"},
			"city":       map[string]interface{}{"type": "string"},
			"state":      map[string]interface{}{"type": "string"},
			"postalCode": map[string]interface{}{"type": "string"},
		},
	}
}

func buildDiagnosticsSchema() map[string]interface{} {
	item := func(props ...string) map[string]interface{} {
		p := make(map[string]interface{}, len(props))
		for _, name := range props {
			typ := "string"
			if name == "line" || name == "kept" {
				typ = "integer"
			}
			p[name] = map[string]string{"type": typ}
		}
		return map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "object", "properties": p},
		}
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"skipped":    item("line", "tag"),
			"duplicates": item("key", "line", "kept"),
			"warnings":   item("line", "tag", "field", "message"),
		},
	}
}

func buildArchivedMessageSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":           map[string]string{"type": "string", "format": "uuid"},
			"control_id":   map[string]string{"type": "string"},
			"message_type": map[string]string{"type": "string"},
			"raw":          map[string]string{"type": "string"},
			"decoded":      map[string]string{"$ref": "#/components/schemas/DecodeResult"},
			"received_at":  map[string]string{"type": "string", "format": "date-time"},
		},
	}
}

func buildArchivePageSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data": map[string]interface{}{
				"type":  "array",
				"items": map[string]string{"$ref": "#/components/schemas/ArchivedMessage"},
			},
			"total":    map[string]string{"type": "integer"},
			"limit":    map[string]string{"type": "integer"},
			"offset":   map[string]string{"type": "integer"},
			"has_more": map[string]string{"type": "boolean"},
			"links": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"relation": map[string]string{"type": "string"},
						"url":      map[string]string{"type": "string"},
					},
				},
			},
		},
	}
}

// ── Swagger UI ──────────────────────────────────────────────────────────

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>HL7 v2 Decode API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
//
//	GET /api/v1/openapi.json  - OpenAPI 3.0 document
//	GET /api/v1/docs          - Swagger UI
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
