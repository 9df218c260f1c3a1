package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ReelHub Review API",
        "description": "Submission review, video analysis and monthly creator settlements",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"Bearer": []}],
    "tags": [
        {"name": "Submissions", "description": "Uploaded videos and their version chains"},
        {"name": "Review", "description": "Approve, reject and revision decisions"},
        {"name": "Feedback", "description": "Timestamped reviewer notes"},
        {"name": "Analysis", "description": "Automatic video analysis"},
        {"name": "Pricing", "description": "Rate overrides"},
        {"name": "Settlements", "description": "Monthly payouts"}
    ],
    "paths": {
        "/submissions": {
            "get": {
                "tags": ["Submissions"],
                "summary": "List submissions",
                "parameters": [
                    {"name": "assignmentId", "in": "query", "type": "string"},
                    {"name": "workerId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Submissions"],
                "summary": "Register an uploaded video as a new submission",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSubmissionRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/submissions/{id}": {
            "get": {
                "tags": ["Submissions"],
                "summary": "Get a submission with its version chain",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Submissions"],
                "summary": "Delete a pending submission",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/submissions/{id}/bump": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Upload a new version of a submission",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BumpSubmissionRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/submissions/{id}/approve": {
            "post": {
                "tags": ["Review"],
                "summary": "Approve a submission and publish its video",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewDecisionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/submissions/{id}/reject": {
            "post": {
                "tags": ["Review"],
                "summary": "Reject a submission",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewDecisionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/submissions/{id}/request-revision": {
            "post": {
                "tags": ["Review"],
                "summary": "Ask the worker for a new version",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewDecisionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/submissions/{id}/cancel-review": {
            "post": {
                "tags": ["Review"],
                "summary": "Undo an approve or reject decision",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/submissions/{id}/feedbacks": {
            "get": {
                "tags": ["Feedback"],
                "summary": "List feedback of a submission",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Feedback"],
                "summary": "Leave feedback on a submission",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateFeedbackRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/feedbacks/{id}": {
            "patch": {
                "tags": ["Feedback"],
                "summary": "Edit feedback",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateFeedbackRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Feedback"],
                "summary": "Delete feedback",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/submissions/{id}/analysis": {
            "get": {
                "tags": ["Analysis"],
                "summary": "Get the analysis result",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Analysis"],
                "summary": "Queue analysis",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Already analysed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/videos/{id}/rate": {
            "put": {
                "tags": ["Pricing"],
                "summary": "Set or clear the per-video rate",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AmountRequest"}}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/workers/{id}/rate": {
            "put": {
                "tags": ["Pricing"],
                "summary": "Set or clear a worker's personal rate",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AmountRequest"}}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/settlements": {
            "get": {
                "tags": ["Settlements"],
                "summary": "List settlements of a month",
                "parameters": [
                    {"name": "year", "in": "query", "required": true, "type": "integer"},
                    {"name": "month", "in": "query", "required": true, "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/settlements/generate": {
            "post": {
                "tags": ["Settlements"],
                "summary": "Generate settlements for a month",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SettlementPeriodRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/settlements/regenerate": {
            "post": {
                "tags": ["Settlements"],
                "summary": "Rebuild unconfirmed settlements of a month",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SettlementPeriodRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/settlements/{id}": {
            "get": {
                "tags": ["Settlements"],
                "summary": "Get a settlement with items and tax breakdown",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/settlements/{id}/confirm": {
            "post": {
                "tags": ["Settlements"],
                "summary": "Confirm a pending settlement",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/settlements/{id}/complete": {
            "post": {
                "tags": ["Settlements"],
                "summary": "Mark a confirmed settlement as paid",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/settlements/{id}/statement": {
            "get": {
                "tags": ["Settlements"],
                "summary": "Download a settlement statement",
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["pdf", "csv"]}
                ],
                "responses": {"200": {"description": "Statement file", "schema": {"type": "file"}}}
            }
        },
        "/settlement-items/{id}": {
            "patch": {
                "tags": ["Settlements"],
                "summary": "Set or clear the manual amount of an item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AmountRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "CreateSubmissionRequest": {
            "type": "object",
            "required": ["assignmentId", "objectKey", "title"],
            "properties": {
                "assignmentId": {"type": "string"},
                "objectKey": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "BumpSubmissionRequest": {
            "type": "object",
            "required": ["objectKey"],
            "properties": {
                "objectKey": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "ReviewDecisionRequest": {
            "type": "object",
            "properties": {"summary": {"type": "string"}}
        },
        "CreateFeedbackRequest": {
            "type": "object",
            "properties": {
                "content": {"type": "string"},
                "startTime": {"type": "number"},
                "endTime": {"type": "number"}
            }
        },
        "AmountRequest": {
            "type": "object",
            "properties": {"amount": {"type": "integer", "x-nullable": true}}
        },
        "SettlementPeriodRequest": {
            "type": "object",
            "required": ["year", "month"],
            "properties": {
                "year": {"type": "integer"},
                "month": {"type": "integer", "minimum": 1, "maximum": 12}
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
