package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ADP Bulk Operations API",
        "description": "Bulk role-assignment engine for the school admin platform",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Bulk", "description": "Bulk role-assignment runs"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/bulk/role-assignments": {
            "get": {
                "tags": ["Bulk"],
                "summary": "List runs",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "initiatedBy", "in": "query", "type": "string"},
                    {"name": "targetRole", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Bulk"],
                "summary": "Submit a bulk role-assignment run",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitBulkRunRequest"}}
                ],
                "responses": {
                    "200": {"description": "Validated only", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Executed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Enqueued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulk/role-assignments/preview": {
            "post": {
                "tags": ["Bulk"],
                "summary": "Validate a bulk payload without executing it",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitBulkRunRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulk/role-assignments/{id}": {
            "get": {
                "tags": ["Bulk"],
                "summary": "Get run detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulk/role-assignments/{id}/status": {
            "get": {
                "tags": ["Bulk"],
                "summary": "Get run progress",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bulk/role-assignments/{id}/export": {
            "get": {
                "tags": ["Bulk"],
                "summary": "Export run outcomes as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV content"}
                }
            }
        },
        "/bulk/role-assignments/{id}/rollback": {
            "post": {
                "tags": ["Bulk"],
                "summary": "Revert the successful mutations of a terminal run",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RollbackRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run not terminal or already rolled back", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SubmitBulkRunRequest": {
            "type": "object",
            "properties": {
                "identifiers": {"type": "array", "items": {"type": "string"}},
                "payload": {"type": "string"},
                "targetRole": {"type": "string"},
                "orgUnitId": {"type": "string"},
                "justification": {"type": "string"},
                "options": {"$ref": "#/definitions/RunOptions"}
            }
        },
        "RunOptions": {
            "type": "object",
            "properties": {
                "batchSize": {"type": "integer"},
                "validateOnly": {"type": "boolean"},
                "skipDuplicates": {"type": "boolean"},
                "sendNotifications": {"type": "boolean"},
                "isTemporary": {"type": "boolean"},
                "expiresAt": {"type": "string", "format": "date-time"}
            }
        },
        "RollbackRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
