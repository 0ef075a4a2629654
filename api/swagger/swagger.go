package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Clinicore Scheduling API",
        "description": "Appointment scheduling and conflict resolution for the EHR platform",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Appointments", "description": "Booking lifecycle and conflict handling"},
        {"name": "Providers", "description": "Provider availability and open slots"},
        {"name": "Reminders", "description": "Scheduled reminder deliveries"}
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
                    "200": {"description": "Ready"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "/appointments": {
            "get": {
                "tags": ["Appointments"],
                "summary": "List appointments",
                "parameters": [
                    {"name": "providerId", "in": "query", "type": "string"},
                    {"name": "patientId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "to", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Appointments"],
                "summary": "Book appointment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAppointmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Requested interval conflicts with an existing booking", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/export": {
            "get": {
                "tags": ["Appointments"],
                "summary": "Export appointments as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "providerId", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "to", "in": "query", "type": "string", "format": "date-time"}
                ],
                "responses": {
                    "200": {"description": "CSV file"}
                }
            }
        },
        "/appointments/{id}": {
            "get": {
                "tags": ["Appointments"],
                "summary": "Get appointment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Appointments"],
                "summary": "Update or reschedule appointment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateAppointmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "New interval conflicts with an existing booking", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/cancel": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Cancel appointment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CancelAppointmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "Cancelled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Appointment already in a terminal state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/confirm": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Confirm appointment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Confirmed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/check-in": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Check patient in",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Checked in", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Check-in outside the scheduled day", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/start": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Start the visit",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "In progress", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/complete": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Complete the visit",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Completed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/no-show": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Mark appointment as no-show",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Marked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Scheduled interval has not elapsed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/appointments/{id}/reminders": {
            "get": {
                "tags": ["Reminders"],
                "summary": "List reminder jobs for an appointment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/providers/{id}/slots": {
            "get": {
                "tags": ["Providers"],
                "summary": "List open slots for a provider on a date",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "duration", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/providers/{id}/availability": {
            "get": {
                "tags": ["Providers"],
                "summary": "List a provider's recurring availability windows",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/providers/{id}/day-sheet": {
            "get": {
                "tags": ["Providers"],
                "summary": "Download a provider's day sheet as PDF",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "PDF file"}
                }
            }
        }
    },
    "definitions": {
        "CreateAppointmentRequest": {
            "type": "object",
            "required": ["patientId", "providerId", "scheduledAt", "durationMinutes"],
            "properties": {
                "patientId": {"type": "string"},
                "providerId": {"type": "string"},
                "scheduledAt": {"type": "string", "format": "date-time"},
                "durationMinutes": {"type": "integer", "minimum": 1},
                "isUrgent": {"type": "boolean"},
                "reminderChannel": {"type": "string", "enum": ["email", "sms", "push"]}
            }
        },
        "UpdateAppointmentRequest": {
            "type": "object",
            "properties": {
                "scheduledAt": {"type": "string", "format": "date-time"},
                "durationMinutes": {"type": "integer", "minimum": 1},
                "isUrgent": {"type": "boolean"},
                "reminderChannel": {"type": "string", "enum": ["email", "sms", "push"]}
            }
        },
        "CancelAppointmentRequest": {
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
