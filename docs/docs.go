// Package docs holds the Swagger document served at /docs.
// Regenerate with: swag init -g cmd/relay/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {"name": "MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {"tags": ["meta"], "summary": "API root info", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}}
        },
        "/health": {
            "get": {"tags": ["health"], "summary": "Health check", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}}
        },
        "/health/db": {
            "get": {"tags": ["health"], "summary": "Database health check", "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object"}}
                }}
        },
        "/health/notify": {
            "get": {"tags": ["health"], "summary": "Notification sink status", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}}
        },
        "/game": {
            "post": {
                "tags": ["lobby"], "summary": "Report game server status",
                "description": "Classifies the report against the last known state, stores it and schedules notifications.",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "report", "required": true, "schema": {"$ref": "#/definitions/model.Report"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["lobby"], "summary": "Remove game server",
                "description": "Deletes the server's stored state and announces the removal in chat. serverurl is read from the JSON body or the query string.",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"type": "string", "in": "query", "name": "serverurl", "description": "Server URL"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/respond.Message"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/sms": {
            "post": {
                "tags": ["sms"], "summary": "Inbound SMS/WhatsApp webhook",
                "description": "Parses START/STOP style commands and replies with TwiML.",
                "consumes": ["application/x-www-form-urlencoded"], "produces": ["application/xml"],
                "parameters": [
                    {"type": "string", "in": "formData", "name": "From", "required": true, "description": "Sender address"},
                    {"type": "string", "in": "formData", "name": "Body", "description": "Message text"}
                ],
                "responses": {
                    "200": {"description": "TwiML response", "schema": {"type": "string"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/sms/errors": {
            "post": {
                "tags": ["sms"], "summary": "Twilio error webhook",
                "description": "Records a provider-side delivery failure. Accepts the JSON payload directly or form-encoded with a Payload field.",
                "consumes": ["application/json"], "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/respond.Message"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/api/v1/servers": {
            "get": {"tags": ["feed"], "summary": "List game servers", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.ServerState"}}}}}
        },
        "/api/v1/events": {
            "get": {"tags": ["feed"], "summary": "Recent events", "produces": ["application/json"],
                "parameters": [{"type": "integer", "in": "query", "name": "limit", "description": "Maximum rows (default 100, max 1000)"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.EventRecord"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }}
        },
        "/api/v1/events/ws": {
            "get": {"tags": ["feed"], "summary": "Live event stream",
                "description": "Websocket; each message is one JSON event record.",
                "responses": {"101": {"description": "Switching Protocols"}}}
        },
        "/api/v1/stats": {
            "get": {"tags": ["feed"], "summary": "Relay statistics", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/store.Stats"}}}}
        },
        "/api/v1/account/register": {
            "post": {
                "tags": ["account"], "summary": "Start dashboard signup",
                "description": "Normalizes the number, stores an unconfirmed subscriber and sends a 6-digit code on the chosen channel.",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handler.registerRequest"}}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/api/v1/account/confirm": {
            "post": {
                "tags": ["account"], "summary": "Confirm dashboard signup",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handler.confirmRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.confirmResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/api/v1/account": {
            "get": {
                "security": [{"BearerAuth": []}], "tags": ["account"], "summary": "Current subscriber",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Subscriber"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            },
            "patch": {
                "security": [{"BearerAuth": []}], "tags": ["account"], "summary": "Update alert preferences",
                "description": "Partial update; omitted fields keep their value.",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/account.Preferences"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Subscriber"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}], "tags": ["account"], "summary": "Delete account data",
                "responses": {
                    "204": {"description": "No Content"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "model.Report": {
            "type": "object",
            "properties": {
                "game": {"type": "string"}, "appkey": {"type": "integer"}, "server": {"type": "string"},
                "region": {"type": "string"}, "serverurl": {"type": "string"}, "status": {"type": "string"},
                "curplayers": {"type": "integer"}, "maxplayers": {"type": "integer"}
            }
        },
        "model.ServerState": {
            "type": "object",
            "properties": {
                "serverurl": {"type": "string"}, "game": {"type": "string"}, "appkey": {"type": "integer"},
                "server": {"type": "string"}, "region": {"type": "string"}, "status": {"type": "string"},
                "curplayers": {"type": "integer"}, "maxplayers": {"type": "integer"},
                "total_updates": {"type": "integer"},
                "created_at": {"type": "string"}, "updated_at": {"type": "string"}
            }
        },
        "model.EventRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "serverurl": {"type": "string"}, "game": {"type": "string"},
                "kind": {"type": "string", "enum": ["server_started", "player_joined", "player_left", "last_player_left"]},
                "curplayers": {"type": "integer"}, "maxplayers": {"type": "integer"}, "created_at": {"type": "string"}
            }
        },
        "model.Subscriber": {
            "type": "object",
            "properties": {
                "phone": {"type": "string"}, "sms": {"type": "boolean"}, "whatsapp": {"type": "boolean"},
                "notify_join_leave": {"type": "boolean"}, "notify_server_start": {"type": "boolean"},
                "throttle": {"type": "boolean"}, "last_notified": {"type": "string"}, "confirmed": {"type": "boolean"},
                "created_at": {"type": "string"}, "updated_at": {"type": "string"}
            }
        },
        "account.Preferences": {
            "type": "object",
            "properties": {
                "notify_join_leave": {"type": "boolean"}, "notify_server_start": {"type": "boolean"},
                "throttle": {"type": "boolean"}, "sms": {"type": "boolean"}, "whatsapp": {"type": "boolean"}
            }
        },
        "handler.registerRequest": {
            "type": "object",
            "properties": {"phone": {"type": "string"}, "channel": {"type": "string", "enum": ["sms", "whatsapp"]}}
        },
        "handler.confirmRequest": {
            "type": "object",
            "properties": {"phone": {"type": "string"}, "code": {"type": "string"}}
        },
        "handler.confirmResponse": {
            "type": "object",
            "properties": {"token": {"type": "string"}, "subscriber": {"$ref": "#/definitions/model.Subscriber"}}
        },
        "store.Stats": {
            "type": "object",
            "properties": {
                "servers": {"type": "integer"}, "subscribers": {"type": "integer"},
                "confirmed_subscribers": {"type": "integer"}, "events": {"type": "integer"}, "sms_errors": {"type": "integer"}
            }
        },
        "respond.Message": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {"code": {"type": "string"}, "message": {"type": "string"}, "detail": {"type": "string"}}
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "2.0.0",
	Host:             "localhost:5100",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Game Alerts Relay API",
	Description:      "Receives lobby status reports, classifies player and server events, and relays alerts to Discord and SMS/WhatsApp subscribers.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
