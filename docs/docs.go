// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
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
        "/send-otp": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Email a one-time sign in code",
                "parameters": [
                    {"description": "Email address", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.SendOTPRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.SuccessResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/verify-otp": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Exchange a one-time code for a session",
                "parameters": [
                    {"description": "Email and code", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.VerifyOTPRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.VerifyOTPResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/me": {
            "get": {
                "security": [{"SessionToken": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.MeResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/logout": {
            "post": {
                "security": [{"SessionToken": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Revoke the current session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.SuccessResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/issues": {
            "get": {
                "produces": ["application/json"],
                "tags": ["issues"],
                "summary": "List issues, newest first",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Issue"}}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"SessionToken": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["issues"],
                "summary": "Report an issue",
                "parameters": [
                    {"type": "file", "description": "Photo (png, jpg, jpeg, gif, webp)", "name": "image", "in": "formData", "required": true},
                    {"type": "string", "description": "garbage, broken_footpath or blocked_footpath", "name": "issue_type", "in": "formData", "required": true},
                    {"type": "string", "description": "Free text", "name": "description", "in": "formData"},
                    {"type": "number", "description": "Latitude in degrees", "name": "latitude", "in": "formData", "required": true},
                    {"type": "number", "description": "Longitude in degrees", "name": "longitude", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handler.CreateIssueResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/issues.geojson": {
            "get": {
                "produces": ["application/json"],
                "tags": ["issues"],
                "summary": "Issues as a GeoJSON FeatureCollection",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/issues/{id}/resolve": {
            "post": {
                "security": [{"SessionToken": []}],
                "description": "Only the reporter may resolve an issue. Unknown issues are reported as forbidden.",
                "produces": ["application/json"],
                "tags": ["issues"],
                "summary": "Mark an issue resolved",
                "parameters": [
                    {"type": "integer", "description": "Issue ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.SuccessResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "errors.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "handler.SuccessResponse": {
            "type": "object",
            "properties": {"success": {"type": "boolean", "example": true}}
        },
        "handler.SendOTPRequest": {
            "type": "object",
            "required": ["email"],
            "properties": {"email": {"type": "string", "example": "citizen@example.com"}}
        },
        "handler.VerifyOTPRequest": {
            "type": "object",
            "required": ["email", "otp"],
            "properties": {
                "email": {"type": "string", "example": "citizen@example.com"},
                "otp": {"type": "string", "example": "123456"}
            }
        },
        "handler.VerifyOTPResponse": {
            "type": "object",
            "properties": {
                "email": {"type": "string", "example": "citizen@example.com"},
                "token": {"type": "string"},
                "user_id": {"type": "integer", "example": 1}
            }
        },
        "handler.MeResponse": {
            "type": "object",
            "properties": {
                "email": {"type": "string", "example": "citizen@example.com"},
                "user_id": {"type": "integer", "example": 1}
            }
        },
        "handler.CreateIssueResponse": {
            "type": "object",
            "properties": {
                "issue": {"$ref": "#/definitions/model.Issue"},
                "success": {"type": "boolean", "example": true}
            }
        },
        "model.Issue": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "description": {"type": "string"},
                "id": {"type": "integer"},
                "image_path": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "resolved_at": {"type": "string"},
                "status": {"type": "string", "enum": ["open", "resolved"]},
                "type": {"type": "string", "enum": ["blocked_footpath", "broken_footpath", "garbage"]},
                "user_id": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "SessionToken": {
            "description": "Session token from /verify-otp. Also accepted as Authorization: Bearer <token>.",
            "type": "apiKey",
            "name": "X-User-Id",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "Civic Report API",
	Description:      "Report civic issues with a photo and a location, sign in by emailed one-time code.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
