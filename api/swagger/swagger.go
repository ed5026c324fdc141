package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Conduct API",
        "description": "Disciplinary scoring engine: point ledger, projections and scheduled bonuses.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Conduct", "description": "Per-student scores and ledger"},
        {"name": "Conduct Jobs", "description": "Queued bonus and rollover runs"}
    ],
    "paths": {
        "/students/{id}/conduct": {
            "get": {
                "tags": ["Conduct"],
                "summary": "Project a student's conduct score",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "asOf", "in": "query", "type": "string", "format": "date"},
                    {"name": "freeze", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "Projected state", "schema": {"$ref": "#/definitions/ConductStateEnvelope"}},
                    "404": {"description": "Student not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/conduct/events": {
            "get": {
                "tags": ["Conduct"],
                "summary": "List a student's conduct ledger",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"},
                    {"name": "type", "in": "query", "type": "array", "items": {"type": "string", "enum": ["INCIDENT", "PERIOD_BONUS", "NO_LOSS_DAILY_BONUS", "YEAR_OPENING_BALANCE"]}, "collectionFormat": "multi"},
                    {"name": "from", "in": "query", "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "Ledger page", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/conduct/incidents": {
            "post": {
                "tags": ["Conduct"],
                "summary": "Record the measure applied to a treated incident",
                "consumes": ["application/json"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterIncidentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Delta applied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Measure not recognised; nothing recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Measure not recognised (strict mode)", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conduct/bonuses/daily": {
            "post": {
                "tags": ["Conduct Jobs"],
                "summary": "Queue the no-loss daily bonus",
                "consumes": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DailyBonusRequest"}}
                ],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Identical run already queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conduct/bonuses/period": {
            "post": {
                "tags": ["Conduct Jobs"],
                "summary": "Queue the period-average bonus",
                "consumes": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PeriodBonusRequest"}}
                ],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conduct/rollover": {
            "post": {
                "tags": ["Conduct Jobs"],
                "summary": "Queue the year-end carryover",
                "consumes": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RolloverRequest"}}
                ],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RegisterIncidentRequest": {
            "type": "object",
            "required": ["description"],
            "properties": {
                "description": {"type": "string", "example": "Advertência Escrita"},
                "quantity": {"type": "string", "example": "1"},
                "incidentId": {"type": "string"},
                "occurredOn": {"type": "string", "format": "date"}
            }
        },
        "DailyBonusRequest": {
            "type": "object",
            "required": ["from"],
            "properties": {
                "from": {"type": "string", "format": "date"},
                "to": {"type": "string", "format": "date"}
            }
        },
        "PeriodBonusRequest": {
            "type": "object",
            "required": ["year", "period"],
            "properties": {
                "year": {"type": "integer"},
                "period": {"type": "integer"},
                "force": {"type": "boolean"}
            }
        },
        "RolloverRequest": {
            "type": "object",
            "required": ["year"],
            "properties": {
                "year": {"type": "integer"}
            }
        },
        "ConductState": {
            "type": "object",
            "properties": {
                "studentId": {"type": "string"},
                "asOf": {"type": "string", "format": "date"},
                "score": {"type": "number"},
                "behavior": {"type": "string", "enum": ["Exceptional", "Excellent", "Good", "Regular", "Insufficient", "Incompatible"]},
                "cached": {"type": "boolean"},
                "breakdown": {"type": "object"}
            }
        },
        "ConductStateEnvelope": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/ConductState"}
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
