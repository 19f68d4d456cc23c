// Package docs registers the OpenAPI description served at /swagger.
// Regenerate the full document with `swag init -g cmd/server/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/checkins": {
            "get": {"tags": ["Roster"], "summary": "List online check-ins", "operationId": "listCheckIns", "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}}},
            "post": {"tags": ["CheckIns"], "summary": "Publish a check-in", "operationId": "createCheckIn", "responses": {"201": {"description": "Created"}, "409": {"description": "Quota exceeded"}, "422": {"description": "Location unavailable"}}}
        },
        "/checkins/markers": {
            "get": {"tags": ["Roster"], "summary": "List map markers", "operationId": "listMarkers", "responses": {"200": {"description": "OK"}}}
        },
        "/checkins/search": {
            "get": {"tags": ["Roster"], "summary": "Search the live roster by name and skills", "operationId": "searchCheckIns", "parameters": [{"name": "q", "in": "query", "required": true, "type": "string"}, {"name": "limit", "in": "query", "type": "integer"}, {"name": "skills_only", "in": "query", "type": "boolean"}], "responses": {"200": {"description": "OK"}, "400": {"description": "Missing query"}}}
        },
        "/checkins/reload": {
            "post": {"tags": ["Roster"], "summary": "Reload the live roster from the store", "operationId": "reloadRoster", "responses": {"200": {"description": "OK"}}}
        },
        "/checkins/{id}/location": {
            "put": {"tags": ["CheckIns"], "summary": "Move an owned check-in", "operationId": "updateLocation", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "403": {"description": "Not the owner"}, "404": {"description": "Not found"}}}
        },
        "/checkins/{id}/status": {
            "put": {"tags": ["CheckIns"], "summary": "Set online status of an owned check-in", "operationId": "setStatus", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "403": {"description": "Not the owner"}}}
        },
        "/checkins/{id}/toggle": {
            "post": {"tags": ["CheckIns"], "summary": "Flip online status of an owned check-in", "operationId": "toggleStatus", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "403": {"description": "Not the owner"}}}
        },
        "/checkins/{id}/profile": {
            "put": {"tags": ["CheckIns"], "summary": "Edit name and skills of an owned check-in", "operationId": "updateProfile", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid profile"}, "403": {"description": "Not the owner"}}}
        },
        "/me/checkins": {
            "get": {"tags": ["Me"], "summary": "List the caller's check-ins", "operationId": "listMyCheckIns", "responses": {"200": {"description": "OK"}}}
        },
        "/me/quota": {
            "get": {"tags": ["Me"], "summary": "Show the caller's quota", "operationId": "getMyQuota", "responses": {"200": {"description": "OK"}}}
        },
        "/ws": {
            "get": {"tags": ["Roster"], "summary": "Live marker feed", "operationId": "liveRoster", "responses": {"101": {"description": "Switching Protocols"}, "503": {"description": "Live updates disabled"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "DevRadar API",
	Description:      "Location check-in board for developers: publish a check-in, browse the live roster, manage your own entries.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
