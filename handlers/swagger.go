package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers Swagger/OpenAPI endpoints for the tracking API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>doctrack API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// OpenAPI document for the tracking API.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "doctrack", "version": "v0.1.0" },
  "components": { "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } } },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/auth/session": {
      "post": { "summary": "Begin a login generation and issue an access token", "responses": { "200": { "description": "generation and access token" }, "401": { "description": "invalid identity token" } } }
    },
    "/auth/session/{generation}": {
      "get": { "summary": "Check whether a generation is active, superseded or expired", "responses": { "200": { "description": "session state" }, "400": { "description": "bad generation" } } },
      "delete": { "summary": "Sign out the generation and blacklist the bearer token", "responses": { "200": { "description": "ended flag" } } }
    },
    "/auth/me": { "get": { "summary": "Current principal", "responses": { "200": { "description": "principal" } } } },
    "/api/documents": {
      "get": { "summary": "List documents", "parameters": [ { "name": "view", "in": "query", "schema": { "type": "string", "enum": ["all","incoming","outgoing","archive"] } } ], "responses": { "200": { "description": "documents sorted by urgency then newest" } } },
      "post": {
        "summary": "Create a document and allocate its control number",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"},"description":{"type":"string"},"remarks":{"type":"string"},"recipient":{"type":"string"},"classification":{"type":"string"},"communicationUrgency":{"type":"string"}}}}}},
        "responses": { "201": { "description": "created" }, "400": { "description": "invalid input" }, "503": { "description": "storage unavailable" } }
      }
    },
    "/api/documents/{id}": { "get": { "summary": "Get a document with its audit log", "responses": { "200": { "description": "document" }, "403": { "description": "not visible" }, "404": { "description": "not found" } } } },
    "/api/documents/{id}/receive": { "post": { "summary": "Receive an incoming document", "responses": { "200": { "description": "updated" }, "409": { "description": "invalid transition" } } } },
    "/api/documents/{id}/forward": { "post": { "summary": "Forward to another department", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"destination":{"type":"string"},"remarks":{"type":"string"}}}}}}, "responses": { "200": { "description": "updated" }, "409": { "description": "invalid transition" } } } },
    "/api/documents/{id}/return": { "post": { "summary": "Return to the originating department", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"reason":{"type":"string"}}}}}}, "responses": { "200": { "description": "updated" }, "409": { "description": "invalid transition" } } } },
    "/api/documents/{id}/complete": { "post": { "summary": "Mark a document done", "responses": { "200": { "description": "updated" }, "409": { "description": "invalid transition" } } } },
    "/api/documents/{id}/archive": { "post": { "summary": "Archive a completed document", "responses": { "200": { "description": "updated" }, "409": { "description": "invalid transition" } } } },
    "/api/documents/{id}/remarks": { "patch": { "summary": "Replace remarks", "responses": { "200": { "description": "updated" } } } },
    "/api/control-numbers/next": { "get": { "summary": "Preview the next control number for the caller", "responses": { "200": { "description": "reference number" } } } },
    "/api/admin/collisions": { "get": { "summary": "List duplicate control numbers", "responses": { "200": { "description": "collisions" }, "403": { "description": "admin only" } } } },
    "/api/admin/purge": { "post": { "summary": "Delete documents created before a cutoff", "responses": { "200": { "description": "deleted count and checkpoints" }, "403": { "description": "admin only" } } } },
    "/ws/feed": { "get": { "summary": "WebSocket change feed", "responses": { "101": { "description": "switching protocols" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
