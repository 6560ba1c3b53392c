package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Batch Enrollment API",
        "description": "Batch-capacity-bounded enrollment and payment verification",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Catalog", "description": "Courses and batches with seat counters"},
        {"name": "Enrollments", "description": "Enrollment lifecycle and payment verification"},
        {"name": "Dashboard", "description": "Enrollment summary and reconciliation"}
    ],
    "paths": {
        "/courses": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List courses",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["active", "inactive", "draft"]}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Catalog"],
                "summary": "Get course",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Course"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List batches",
                "parameters": [
                    {"name": "course_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["upcoming", "ongoing", "completed"]}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/batches/{id}": {
            "get": {
                "tags": ["Catalog"],
                "summary": "Get batch",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Batch"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments; students only see their own",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "batch_id", "in": "query", "type": "string"},
                    {"name": "course_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "enrolled", "dropped"]},
                    {"name": "payment_status", "in": "query", "type": "string", "enum": ["pending", "submitted", "verified", "rejected"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll into a batch",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEnrollmentRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Enrollment"}},
                    "409": {"description": "NO_SEATS_AVAILABLE or CONFLICT", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get enrollment",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Enrollment"}}}
            }
        },
        "/enrollments/{id}/payment-proof": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Submit payment proof",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitPaymentProofRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Enrollment"}},
                    "409": {"description": "INVALID_STATE", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/cancel": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Cancel an unpaid enrollment",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Enrollment"}}}
            }
        },
        "/enrollments/{id}/drop": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Drop an enrollment and release its seat",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DropEnrollmentRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Enrollment"}}}
            }
        },
        "/enrollments/verify-payment": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Verify or reject a submitted payment",
                "parameters": [
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Enrollment"}},
                    "409": {"description": "CAPACITY_EXCEEDED, NOT_PENDING_VERIFICATION, INVALID_STATE or IDEMPOTENCY_KEY_REUSED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "STORAGE_FAILURE", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/policy": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Seat reservation policy in effect",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/enrollments/overdue": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Submitted payments waiting longer than the review SLA",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/enrollments/export": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Export enrollment roster",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "batch_id", "in": "query", "type": "string"},
                    {"name": "course_id", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "Roster file", "schema": {"type": "file"}}}
            }
        },
        "/dashboard/enrollments": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Enrollment dashboard summary",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/EnrollmentSummary"}}}
            }
        },
        "/dashboard/enrollments/reconcile": {
            "post": {
                "tags": ["Dashboard"],
                "summary": "Recount the dashboard and report drift",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "Course": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "duration": {"type": "string"},
                "price": {"type": "number"},
                "status": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "Batch": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "course_id": {"type": "string"},
                "course_name": {"type": "string"},
                "instructor_id": {"type": "string"},
                "instructor_name": {"type": "string"},
                "name": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "max_students": {"type": "integer"},
                "current_students": {"type": "integer"},
                "status": {"type": "string"}
            }
        },
        "Enrollment": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "batch_id": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "enrolled", "dropped"]},
                "payment_status": {"type": "string", "enum": ["pending", "submitted", "verified", "rejected"]},
                "payment_proof": {"type": "string"},
                "payment_submitted_date": {"type": "string"},
                "verified_by": {"type": "string"},
                "verification_date": {"type": "string"},
                "notes": {"type": "string"},
                "enrolled_date": {"type": "string"},
                "dropped_date": {"type": "string"}
            }
        },
        "CreateEnrollmentRequest": {
            "type": "object",
            "required": ["batch_id"],
            "properties": {
                "batch_id": {"type": "string"},
                "student_id": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "SubmitPaymentProofRequest": {
            "type": "object",
            "required": ["payment_proof"],
            "properties": {"payment_proof": {"type": "string"}}
        },
        "DropEnrollmentRequest": {
            "type": "object",
            "properties": {"reason": {"type": "string"}}
        },
        "VerifyPaymentRequest": {
            "type": "object",
            "required": ["enrollment_id", "action"],
            "properties": {
                "enrollment_id": {"type": "string"},
                "verified_by": {"type": "string"},
                "action": {"type": "string", "enum": ["verify", "reject"]},
                "notes": {"type": "string"},
                "idempotency_key": {"type": "string"}
            }
        },
        "EnrollmentSummary": {
            "type": "object",
            "properties": {
                "total_enrollments": {"type": "integer"},
                "pending_verifications": {"type": "integer"},
                "verified_enrollments": {"type": "integer"},
                "active_batches": {"type": "integer"},
                "rejected_payments": {"type": "integer"},
                "dropped_enrollments": {"type": "integer"},
                "seats_capacity": {"type": "integer"},
                "seats_taken": {"type": "integer"}
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
