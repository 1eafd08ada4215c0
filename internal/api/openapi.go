package api

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

const callbackSchemaName = "CallbackPayload"

// callbackContract documents the callback the analysis agent must send. It is
// served at /openapi.json and its CallbackPayload schema validates every
// inbound callback body.
const callbackContract = `{
  "openapi": "3.0.3",
  "info": {
    "title": "YAN callback gateway",
    "version": "1.0.0",
    "description": "Completion callbacks posted by the analysis agent."
  },
  "paths": {
    "/openserv_webhook": {
      "post": {
        "operationId": "completeJob",
        "security": [{"callbackSecret": []}],
        "requestBody": {
          "required": true,
          "content": {
            "application/json": {
              "schema": {"$ref": "#/components/schemas/CallbackPayload"}
            }
          }
        },
        "responses": {
          "200": {"description": "Result accepted and delivered", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Status"}}}},
          "400": {"description": "Malformed payload", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Status"}}}},
          "403": {"description": "Bad or missing secret", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Status"}}}},
          "404": {"description": "Unknown or already completed job", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Status"}}}},
          "500": {"description": "Result could not be rendered", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Status"}}}}
        }
      }
    }
  },
  "components": {
    "securitySchemes": {
      "callbackSecret": {"type": "apiKey", "in": "header", "name": "X-Yan-Secret"}
    },
    "schemas": {
      "CallbackMetadata": {
        "type": "object",
        "required": ["job_id", "user_id"],
        "properties": {
          "job_id": {"type": "string", "minLength": 1},
          "user_id": {"type": "integer", "format": "int64"},
          "task_kind": {"type": "string", "minLength": 1},
          "task_type": {"type": "string", "minLength": 1}
        },
        "anyOf": [
          {"required": ["task_kind"]},
          {"required": ["task_type"]}
        ]
      },
      "CallbackPayload": {
        "type": "object",
        "required": ["callback_metadata", "result_markdown"],
        "properties": {
          "callback_metadata": {"$ref": "#/components/schemas/CallbackMetadata"},
          "result_markdown": {"type": "string", "minLength": 1}
        }
      },
      "Status": {
        "type": "object",
        "required": ["status"],
        "properties": {
          "status": {"type": "string", "enum": ["success", "error"]},
          "message": {"type": "string"}
        }
      }
    }
  }
}`

func loadContract(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData([]byte(callbackContract))
	if err != nil {
		return nil, fmt.Errorf("load callback contract: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid callback contract: %w", err)
	}
	ref, ok := doc.Components.Schemas[callbackSchemaName]
	if !ok || ref.Value == nil {
		return nil, fmt.Errorf("callback contract has no %s schema", callbackSchemaName)
	}
	return doc, nil
}
