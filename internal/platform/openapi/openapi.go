package openapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Generator builds the OpenAPI 3.0 document for the diagnosis API.
type Generator struct {
	version string
	baseURL string
}

// NewGenerator creates a new OpenAPI spec generator.
func NewGenerator(version, baseURL string) *Generator {
	return &Generator{version: version, baseURL: baseURL}
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := map[string]interface{}{
		"/health": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Service and knowledge base health",
				"operationId": "health",
				"tags":        []string{"system"},
				"security":    []interface{}{},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Knowledge base loaded"},
					"503": g.buildResponseWithSchema("Knowledge base not loaded", "#/components/schemas/Error"),
				},
			},
		},
		"/api/v1/diagnose": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Rank the diseases explaining observed symptoms",
				"operationId": "diagnose",
				"tags":        []string{"diagnosis"},
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": map[string]interface{}{"$ref": "#/components/schemas/DiagnoseRequest"},
						},
					},
				},
				"responses": map[string]interface{}{
					"200": g.buildResponseWithSchema("Diagnosis report", "#/components/schemas/Report"),
					"400": g.buildResponseWithSchema("Invalid request", "#/components/schemas/Error"),
				},
			},
		},
		"/api/v1/symptoms": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Search known symptoms",
				"operationId": "searchSymptoms",
				"tags":        []string{"knowledge"},
				"parameters": []map[string]interface{}{
					queryParam("q", "string", "Substring of the symptom label or slug"),
					queryParam("_count", "integer", "Page size"),
					queryParam("_offset", "integer", "Page offset"),
				},
				"responses": map[string]interface{}{
					"200": g.buildResponseWithSchema("Page of symptoms", "#/components/schemas/SymptomPage"),
				},
			},
		},
		"/api/v1/diseases/{slug}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Symptoms of one disease",
				"operationId": "getDisease",
				"tags":        []string{"knowledge"},
				"parameters": []map[string]interface{}{
					{"name": "slug", "in": "path", "required": true, "schema": map[string]string{"type": "string"}},
				},
				"responses": map[string]interface{}{
					"200": g.buildResponseWithSchema("Disease detail", "#/components/schemas/DiseaseDetail"),
					"404": g.buildResponseWithSchema("Unknown disease", "#/components/schemas/Error"),
				},
			},
		},
		"/api/v1/kb/stats": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Knowledge base statistics",
				"operationId": "kbStats",
				"tags":        []string{"knowledge"},
				"responses": map[string]interface{}{
					"200": g.buildResponseWithSchema("Statistics", "#/components/schemas/Stats"),
				},
			},
		},
		"/api/v1/kb/reload": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Reload the knowledge base from its source",
				"operationId": "kbReload",
				"tags":        []string{"knowledge"},
				"responses": map[string]interface{}{
					"200": g.buildResponseWithSchema("Statistics of the new generation", "#/components/schemas/Stats"),
					"502": g.buildResponseWithSchema("Source could not be read", "#/components/schemas/Error"),
				},
			},
		},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Differential Diagnosis API",
			"version":     g.version,
			"description": "Abductive differential diagnosis over a disease-symptom knowledge base",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": buildComponentSchemas(),
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
		"security": []map[string]interface{}{
			{"bearerAuth": []string{}},
		},
	}
}

func queryParam(name, typ, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"schema":      map[string]string{"type": typ},
	}
}

func (g *Generator) buildResponseWithSchema(description, schemaRef string) map[string]interface{} {
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

func str() map[string]interface{} { return map[string]interface{}{"type": "string"} }
func integer() map[string]interface{} { return map[string]interface{}{"type": "integer"} }

func arrayOf(ref string) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": map[string]interface{}{"$ref": ref}}
}

func object(props map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": props}
}

func buildComponentSchemas() map[string]interface{} {
	concept := "#/components/schemas/Concept"
	candidate := "#/components/schemas/Candidate"
	return map[string]interface{}{
		"Error": object(map[string]interface{}{"message": str()}),
		"Concept": object(map[string]interface{}{
			"slug":  str(),
			"label": str(),
		}),
		"DiagnoseRequest": map[string]interface{}{
			"type":        "object",
			"description": "Exactly one of mentions or text must be set",
			"properties": map[string]interface{}{
				"mentions": map[string]interface{}{"type": "array", "items": str()},
				"text":     str(),
			},
		},
		"Candidate": object(map[string]interface{}{
			"rank":           integer(),
			"disease":        map[string]interface{}{"$ref": concept},
			"matched":        arrayOf(concept),
			"matched_count":  integer(),
			"observed_count": integer(),
			"coverage":       map[string]interface{}{"type": "number"},
		}),
		"Report": object(map[string]interface{}{
			"id":                map[string]interface{}{"type": "string", "format": "uuid"},
			"kb_generation":     integer(),
			"created_at":        map[string]interface{}{"type": "string", "format": "date-time"},
			"observed":          arrayOf(concept),
			"ranked":            arrayOf(candidate),
			"fully_explanatory": arrayOf(candidate),
			"unexplained":       arrayOf(concept),
		}),
		"SymptomPage": object(map[string]interface{}{
			"data": map[string]interface{}{
				"type": "array",
				"items": object(map[string]interface{}{
					"slug":          str(),
					"label":         str(),
					"disease_count": integer(),
				}),
			},
			"total":    integer(),
			"limit":    integer(),
			"offset":   integer(),
			"has_more": map[string]interface{}{"type": "boolean"},
		}),
		"DiseaseDetail": object(map[string]interface{}{
			"slug":     str(),
			"label":    str(),
			"symptoms": arrayOf(concept),
		}),
		"Stats": object(map[string]interface{}{
			"facts":      integer(),
			"diseases":   integer(),
			"symptoms":   integer(),
			"skipped":    integer(),
			"source":     str(),
			"generation": integer(),
			"loaded_at":  map[string]interface{}{"type": "string", "format": "date-time"},
		}),
	}
}

// docsCSP replaces the API-wide policy on the docs page, which loads
// Swagger UI from unpkg.
const docsCSP = "default-src 'none'; script-src 'unsafe-inline' https://unpkg.com; " +
	"style-src 'unsafe-inline' https://unpkg.com; img-src data: https://unpkg.com; connect-src 'self'; frame-ancestors 'none'"

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Differential Diagnosis API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		c.Response().Header().Set("Content-Security-Policy", docsCSP)
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
