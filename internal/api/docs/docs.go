// Package docs holds the OpenAPI description served at /docs.
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
        "/": {"get": {"tags": ["health"], "summary": "Worker info", "responses": {"200": {"description": "OK"}}}},
        "/health": {"get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}, "503": {"description": "Degraded"}}}},
        "/incidents": {"get": {"tags": ["incidents"], "summary": "List incidents", "parameters": [
            {"type": "string", "name": "phase", "in": "query"},
            {"type": "string", "name": "type", "in": "query"},
            {"type": "integer", "name": "limit", "in": "query"}
        ], "responses": {"200": {"description": "OK"}, "503": {"description": "Store unavailable"}}}},
        "/incidents/{id}": {"get": {"tags": ["incidents"], "summary": "Get incident", "parameters": [
            {"type": "string", "name": "id", "in": "path", "required": true}
        ], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
        "/incidents/{id}/events": {"get": {"tags": ["incidents"], "summary": "Incident event log", "parameters": [
            {"type": "string", "name": "id", "in": "path", "required": true}
        ], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
        "/cameras": {"get": {"tags": ["cameras"], "summary": "List camera rigs", "responses": {"200": {"description": "OK"}}}},
        "/cameras/{name}/enable": {"post": {"tags": ["cameras"], "summary": "Make a camera active", "parameters": [
            {"type": "string", "name": "name", "in": "path", "required": true}
        ], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
        "/cameras/{name}/aim": {"post": {"tags": ["cameras"], "summary": "Aim a camera at a point", "parameters": [
            {"type": "string", "name": "name", "in": "path", "required": true}
        ], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}, "404": {"description": "Not found"}}}},
        "/cameras/{name}/snapshot": {"get": {"tags": ["cameras"], "summary": "JPEG snapshot", "produces": ["image/jpeg"], "parameters": [
            {"type": "string", "name": "name", "in": "path", "required": true}
        ], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
        "/cameras/{name}/stream": {"get": {"tags": ["cameras"], "summary": "Live MJPEG preview", "produces": ["multipart/x-mixed-replace"], "parameters": [
            {"type": "string", "name": "name", "in": "path", "required": true}
        ], "responses": {"200": {"description": "OK"}, "503": {"description": "Preview disabled"}}}},
        "/captures": {"get": {"tags": ["captures"], "summary": "List capture sessions", "responses": {"200": {"description": "OK"}}}},
        "/captures/force-stop": {"post": {"tags": ["captures"], "summary": "Stop every capture", "responses": {"200": {"description": "OK"}}}},
        "/captures/{id}/stop": {"post": {"tags": ["captures"], "summary": "Stop one capture", "parameters": [
            {"type": "string", "name": "id", "in": "path", "required": true}
        ], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
        "/clock": {
            "get": {"tags": ["clock"], "summary": "Simulation clock state", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["clock"], "summary": "Change playback", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}}}
        },
        "/geo": {"get": {"tags": ["geo"], "summary": "Geo reference status", "responses": {"200": {"description": "OK"}}}},
        "/geo/control-points": {"post": {"tags": ["geo"], "summary": "Refit from control points", "responses": {"200": {"description": "OK"}, "422": {"description": "Unusable control points"}}}},
        "/geo/convert": {"get": {"tags": ["geo"], "summary": "Convert geodetic to working coordinates", "parameters": [
            {"type": "number", "name": "lat", "in": "query", "required": true},
            {"type": "number", "name": "lon", "in": "query", "required": true},
            {"type": "number", "name": "alt", "in": "query"}
        ], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}}}},
        "/geo/calibrate": {"post": {"tags": ["geo"], "summary": "Calibration report", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}}}},
        "/actors": {"get": {"tags": ["actors"], "summary": "List actors", "responses": {"200": {"description": "OK"}}}},
        "/actors/{id}": {
            "put": {"tags": ["actors"], "summary": "Upsert actor", "parameters": [
                {"type": "string", "name": "id", "in": "path", "required": true}
            ], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad request"}}},
            "delete": {"tags": ["actors"], "summary": "Despawn actor", "parameters": [
                {"type": "string", "name": "id", "in": "path", "required": true}
            ], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
        },
        "/system/stats": {"get": {"tags": ["system"], "summary": "Service counters", "responses": {"200": {"description": "OK"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Airfield Sentinel API",
	Description:      "Incident detection, camera arbitration and clip capture for an airport digital twin",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
