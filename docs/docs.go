// Package docs registers the admin API's Swagger document with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "description": "Inspect connection-time proxy scans, issued bans and the exemption list.",
    "title": "Host Scan Admin API",
    "version": "1.0"
  },
  "basePath": "/api/v1",
  "schemes": [
    "http"
  ],
  "securityDefinitions": {
    "ApiKeyAuth": {
      "type": "apiKey",
      "name": "Authorization",
      "in": "header"
    }
  },
  "paths": {
    "/healthz": {
      "get": {
        "produces": ["application/json"],
        "tags": ["Health"],
        "summary": "Liveness probe",
        "responses": {
          "200": {
            "description": "OK",
            "schema": {"$ref": "#/definitions/HealthResponse"}
          }
        }
      }
    },
    "/status": {
      "get": {
        "security": [{"ApiKeyAuth": []}],
        "produces": ["application/json"],
        "tags": ["Scans"],
        "summary": "Scan subsystem status",
        "description": "Reports the bound scan endpoint, registered probe hooks, registry occupancy and worker pool usage. quiescent becomes true once every record has been swept; only then can the scan module unload.",
        "responses": {
          "200": {"description": "OK", "schema": {"$ref": "#/definitions/StatusResponse"}},
          "401": {"description": "Missing or incorrect API key", "schema": {"$ref": "#/definitions/ErrorResponse"}},
          "429": {"description": "Rate limit exceeded", "schema": {"$ref": "#/definitions/ErrorResponse"}},
          "503": {"description": "Core loop is not running", "schema": {"$ref": "#/definitions/ErrorResponse"}}
        }
      }
    },
    "/scans": {
      "get": {
        "security": [{"ApiKeyAuth": []}],
        "produces": ["application/json"],
        "tags": ["Scans"],
        "summary": "Addresses under scan",
        "description": "Lists every linked scan record, oldest first, with the number of probe workers still running against it.",
        "responses": {
          "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/ScanRecord"}}},
          "401": {"description": "Missing or incorrect API key", "schema": {"$ref": "#/definitions/ErrorResponse"}}
        }
      }
    },
    "/bans": {
      "get": {
        "security": [{"ApiKeyAuth": []}],
        "produces": ["application/json"],
        "tags": ["Bans"],
        "summary": "Host bans in force",
        "description": "Lists bans issued for open proxies, oldest first. Expired bans are removed by the core loop.",
        "responses": {
          "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/Ban"}}},
          "401": {"description": "Missing or incorrect API key", "schema": {"$ref": "#/definitions/ErrorResponse"}},
          "503": {"description": "Core loop is not running", "schema": {"$ref": "#/definitions/ErrorResponse"}}
        }
      }
    },
    "/exemptions": {
      "get": {
        "security": [{"ApiKeyAuth": []}],
        "produces": ["application/json"],
        "tags": ["Exemptions"],
        "summary": "Exempt prefixes",
        "responses": {
          "200": {"description": "OK", "schema": {"$ref": "#/definitions/ExemptionsResponse"}},
          "401": {"description": "Missing or incorrect API key", "schema": {"$ref": "#/definitions/ErrorResponse"}}
        }
      },
      "put": {
        "security": [{"ApiKeyAuth": []}],
        "consumes": ["application/json"],
        "produces": ["application/json"],
        "tags": ["Exemptions"],
        "summary": "Replace exempt prefixes",
        "description": "Atomically replaces the exemption list. Connections from exempt addresses are never scanned; scans already running are not affected.",
        "parameters": [
          {
            "description": "New exemption list",
            "name": "request",
            "in": "body",
            "required": true,
            "schema": {"$ref": "#/definitions/ReplaceExemptionsRequest"}
          }
        ],
        "responses": {
          "200": {"description": "OK", "schema": {"$ref": "#/definitions/ExemptionsResponse"}},
          "400": {"description": "Malformed body or prefix", "schema": {"$ref": "#/definitions/ErrorResponse"}},
          "401": {"description": "Missing or incorrect API key", "schema": {"$ref": "#/definitions/ErrorResponse"}}
        }
      }
    }
  },
  "definitions": {
    "Ban": {
      "type": "object",
      "properties": {
        "country": {"type": "string", "example": "NL"},
        "expire_at": {"type": "string", "format": "date-time", "example": "2024-01-03T15:04:05Z"},
        "kind": {"type": "string", "enum": ["z"], "example": "z"},
        "mask": {"type": "string", "example": "*@198.51.100.7"},
        "reason": {"type": "string", "example": "Open SOCKS4 proxy on port 1080"},
        "set_at": {"type": "string", "format": "date-time", "example": "2024-01-02T15:04:05Z"},
        "set_by": {"type": "string", "example": "irc.example.net"}
      }
    },
    "ErrorResponse": {
      "type": "object",
      "properties": {
        "error": {"type": "string", "example": "unauthorized"}
      }
    },
    "ExemptionsResponse": {
      "type": "object",
      "properties": {
        "prefixes": {"type": "array", "items": {"type": "string"}, "example": ["127.0.0.0/8", "10.0.0.0/8"]}
      }
    },
    "HealthResponse": {
      "type": "object",
      "properties": {
        "status": {"type": "string", "example": "ok"}
      }
    },
    "ReplaceExemptionsRequest": {
      "type": "object",
      "required": ["prefixes"],
      "properties": {
        "prefixes": {"type": "array", "items": {"type": "string"}, "example": ["127.0.0.1", "10.0.0.0/8"]}
      }
    },
    "ScanRecord": {
      "type": "object",
      "properties": {
        "addr": {"type": "string", "example": "198.51.100.7"},
        "refs": {"type": "integer", "example": 2},
        "since": {"type": "string", "format": "date-time", "example": "2024-01-02T15:04:05Z"}
      }
    },
    "StatusResponse": {
      "type": "object",
      "properties": {
        "active_scans": {"type": "integer", "example": 3},
        "bans": {"type": "integer", "example": 12},
        "endpoint": {"type": "string", "example": "203.0.113.5:1080"},
        "endpoint_configured": {"type": "boolean", "example": true},
        "hooks": {"type": "array", "items": {"type": "string"}, "example": ["socks4", "socks5", "http"]},
        "queued_results": {"type": "integer", "example": 0},
        "quiescent": {"type": "boolean", "example": false},
        "workers": {"$ref": "#/definitions/WorkerStats"}
      }
    },
    "WorkerStats": {
      "type": "object",
      "properties": {
        "capacity": {"type": "integer", "example": 256},
        "free": {"type": "integer", "example": 252},
        "running": {"type": "integer", "example": 4}
      }
    }
  }
}
`

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}

type swaggerDoc struct{}

func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}
