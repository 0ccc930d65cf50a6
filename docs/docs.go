// Package docs registra la especificación OpenAPI de la API.
// Se regenera con: swag init -g cmd/api/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/appointments": {
            "get": {
                "tags": ["appointments"],
                "summary": "Listar turnos",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/appointmentResponse"}}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            },
            "post": {
                "tags": ["appointments"],
                "summary": "Crear turno",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/appointmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/appointmentResponse"}},
                    "409": {"description": "conflicto de horario", "schema": {"$ref": "#/definitions/respond.ErrorBody"}},
                    "422": {"description": "errores de campo", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/appointments/{appointmentID}": {
            "put": {
                "tags": ["appointments"],
                "summary": "Editar turno",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "appointmentID", "in": "path", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/appointmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/appointmentResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/respond.ErrorBody"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/appointments/{appointmentID}/cancel": {
            "post": {
                "tags": ["appointments"],
                "summary": "Cancelar turno propio",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "appointmentID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/appointmentResponse"}},
                    "404": {"description": "reason=not-found", "schema": {"$ref": "#/definitions/respond.ErrorBody"}},
                    "422": {"description": "reason=already-past | already-cancelled", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/pets": {
            "get": {
                "tags": ["pets"],
                "summary": "Listar mascotas",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/petResponse"}}}
                }
            },
            "post": {
                "tags": ["pets"],
                "summary": "Registrar mascota",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/petRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/petResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/pets/{petID}": {
            "delete": {
                "tags": ["pets"],
                "summary": "Borrar mascota",
                "description": "Borra también todos sus turnos.",
                "parameters": [
                    {"type": "string", "name": "petID", "in": "path", "required": true}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/users": {
            "get": {
                "tags": ["users"],
                "summary": "Listar usuarios",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/userResponse"}}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            },
            "post": {
                "tags": ["users"],
                "summary": "Crear usuario",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/staff.NewUserInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/userResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/users/{userID}": {
            "delete": {
                "tags": ["users"],
                "summary": "Borrar usuario",
                "parameters": [
                    {"type": "string", "name": "userID", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/respond.ErrorBody"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        },
        "/users/{userID}/role": {
            "put": {
                "tags": ["users"],
                "summary": "Cambiar rol",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "userID", "in": "path", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/assignRoleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/roleChangeResponse"}},
                    "400": {"description": "rol inválido", "schema": {"$ref": "#/definitions/respond.ErrorBody"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/respond.ErrorBody"}}
                }
            }
        }
    },
    "definitions": {
        "appointmentRequest": {
            "type": "object",
            "properties": {
                "date_time": {"type": "string"},
                "pet_id": {"type": "string"},
                "veterinarian_id": {"type": "string"}
            }
        },
        "appointmentResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "date_time": {"type": "string"},
                "state": {"type": "string", "enum": ["Pendiente", "Confirmado", "Cancelado"]},
                "pet_id": {"type": "string"},
                "veterinarian_id": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "petRequest": {
            "type": "object",
            "properties": {
                "client_id": {"type": "string"},
                "name": {"type": "string"},
                "species": {"type": "string"},
                "breed": {"type": "string"},
                "birth_date": {"type": "string"}
            }
        },
        "petResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "client_id": {"type": "string"},
                "name": {"type": "string"},
                "species": {"type": "string"},
                "breed": {"type": "string"},
                "birth_date": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "staff.NewUserInput": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string"},
                "phone": {"type": "string"},
                "address": {"type": "string"},
                "role": {"type": "string", "enum": ["Administrador", "Veterinario", "Cliente"]}
            }
        },
        "userResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "name": {"type": "string"},
                "phone": {"type": "string"},
                "address": {"type": "string"},
                "role": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "assignRoleRequest": {
            "type": "object",
            "properties": {
                "role": {"type": "string"}
            }
        },
        "roleChangeResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "from": {"type": "string"},
                "to": {"type": "string"},
                "client_removed": {"type": "boolean"},
                "orphaned_pets": {"type": "integer"},
                "departure": {
                    "type": "object",
                    "properties": {
                        "veterinarian_id": {"type": "string"},
                        "reassigned": {"type": "object", "additionalProperties": {"type": "string"}},
                        "cancelled": {"type": "array", "items": {"type": "string"}}
                    }
                }
            }
        },
        "respond.ErrorBody": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "detail": {"type": "string"},
                "reason": {"type": "string"},
                "fields": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "field": {"type": "string"},
                            "tag": {"type": "string"},
                            "message": {"type": "string"}
                        }
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Vet Appointments API",
	Description:      "Turnos, mascotas y roles de una clínica veterinaria.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
