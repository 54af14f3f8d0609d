//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "basePath": "{{.BasePath}}",
    "paths": {
        "/bind": {"post": {"summary": "Bind a model and fetch its first chunks", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "loader stats"}, "400": {"description": "invalid model id"}, "404": {"description": "unknown model"}, "409": {"description": "model not active"}, "503": {"description": "no repository configured"}}}},
        "/prefetch": {"post": {"summary": "Fetch the next chunks of the bound model", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "chunks fetched"}, "409": {"description": "no model bound"}}}},
        "/generate": {"post": {"summary": "Deterministic generation over the warm set", "consumes": ["application/json"], "produces": ["application/json", "application/x-ndjson"], "responses": {"200": {"description": "tokens"}, "409": {"description": "no model bound"}, "412": {"description": "quality gate failed"}}}},
        "/health": {"get": {"summary": "Cache and binding health", "produces": ["application/json"], "responses": {"200": {"description": "health"}}}},
        "/loader": {"get": {"summary": "Loader progress", "produces": ["application/json"], "responses": {"200": {"description": "loader stats"}}}},
        "/status": {"get": {"summary": "Full status", "produces": ["application/json"], "responses": {"200": {"description": "status"}}}},
        "/models": {"get": {"summary": "List repository models", "produces": ["application/json"], "responses": {"200": {"description": "model ids"}}}},
        "/models/{id}/meta": {"get": {"summary": "Model metadata", "produces": ["application/json"], "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "metadata"}, "404": {"description": "unknown model"}}}},
        "/quality/score": {"post": {"summary": "Score a NOVAQ blob", "consumes": ["application/octet-stream"], "produces": ["application/json"], "parameters": [{"name": "model_id", "in": "query", "type": "string"}], "responses": {"200": {"description": "validation result"}, "422": {"description": "malformed blob"}}}},
        "/quality/meta": {"post": {"summary": "Extract NOVAQ metadata", "consumes": ["application/octet-stream"], "produces": ["application/json"], "responses": {"200": {"description": "metadata"}, "422": {"description": "malformed blob"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Title:            "warmsetd API",
	Description:      "Warm-set chunk cache and deterministic generation service.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
