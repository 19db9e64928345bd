package tools

import (
	"context"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/loopwork-ai/ignition-mcp/sessions"
)

// validateScriptPath is the rules-engine resource that checks Jython
// scripts destined for the gateway.
const validateScriptPath = "/validate/script"

// validationTools returns the script validation tool set. Each validation
// run is recorded as a session so a script can be iterated on and
// re-checked without resubmitting its context.
func (d *Dispatcher) validationTools() []customTool {
	return []customTool{
		{
			tool: Tool{
				Name:        "validate_jython_script",
				Description: "Validate a Jython script against the rules engine and open a validation session",
				InputSchema: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"script":   {Type: "string", Description: "Jython script content"},
						"context":  {Type: "object", Description: "Additional context for validation"},
						"metadata": {Type: "object", Description: "Metadata stored with the session"},
					},
					Required:             []string{"script"},
					AdditionalProperties: falseSchema(),
				},
			},
			handler: d.validateScript,
		},
		{
			tool: Tool{
				Name:        "get_validation_session",
				Description: "Retrieve a script validation session",
				InputSchema: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"sessionId": {Type: "string", Description: "Validation session identifier"},
					},
					Required:             []string{"sessionId"},
					AdditionalProperties: falseSchema(),
				},
			},
			handler: d.getValidationSession,
		},
		{
			tool: Tool{
				Name:        "update_validation_session",
				Description: "Update a validation session and re-validate when the script changes",
				InputSchema: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"sessionId": {Type: "string", Description: "Validation session identifier"},
						"script":    {Type: "string", Description: "Replacement script content"},
						"context":   {Type: "object", Description: "Replacement validation context"},
						"metadata":  {Type: "object", Description: "Metadata merged into the session"},
					},
					Required:             []string{"sessionId"},
					AdditionalProperties: falseSchema(),
				},
			},
			handler: d.updateValidationSession,
		},
		{
			tool: Tool{
				Name:        "list_validation_sessions",
				Description: "List script validation sessions",
				InputSchema: &jsonschema.Schema{
					Type:                 "object",
					Properties:           map[string]*jsonschema.Schema{},
					AdditionalProperties: falseSchema(),
				},
			},
			handler: d.listValidationSessions,
		},
		{
			tool: Tool{
				Name:        "delete_validation_session",
				Description: "Delete a script validation session",
				InputSchema: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"sessionId": {Type: "string", Description: "Validation session identifier"},
					},
					Required:             []string{"sessionId"},
					AdditionalProperties: falseSchema(),
				},
			},
			handler: d.deleteValidationSession,
		},
	}
}

// runValidation checks a script against the rules engine. Engine failures
// are folded into the result rather than failing the session; the session
// still records the script and can be re-validated later.
func (d *Dispatcher) runValidation(ctx context.Context, script string, scriptContext map[string]any) map[string]any {
	if d.rules == nil {
		return map[string]any{"error": "script validation service is not configured"}
	}

	payload := map[string]any{"script": script}
	if scriptContext != nil {
		payload["context"] = scriptContext
	}

	data, err := d.rules.Do(ctx, http.MethodPost, validateScriptPath, nil, payload, nil)
	if err != nil {
		d.logger.Warn("script validation failed", "error", err)
		return map[string]any{"error": "the rules engine could not be reached"}
	}

	if result, ok := data.(map[string]any); ok {
		return result
	}
	return map[string]any{"result": data}
}

func (d *Dispatcher) validateScript(ctx context.Context, args map[string]any) Result {
	script, _ := args["script"].(string)
	if script == "" {
		return errorResult("script is required")
	}

	scriptContext, _, err := objectArg(args, "context")
	if err != nil {
		return errorResult("%v", err)
	}
	metadata, _, err := objectArg(args, "metadata")
	if err != nil {
		return errorResult("%v", err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	validation := d.runValidation(ctx, script, scriptContext)

	session, err := d.store.Create(ctx, sessions.Session{
		Script:           script,
		Context:          scriptContext,
		Metadata:         metadata,
		ValidationResult: validation,
	})
	if err != nil {
		d.logger.Error("creating validation session failed", "error", err)
		return errorResult("unable to create validation session")
	}

	return Result{Success: true, Data: map[string]any{
		"sessionId":        session.ID,
		"validationResult": session.ValidationResult,
		"createdAt":        session.CreatedAt,
	}}
}

func (d *Dispatcher) getValidationSession(ctx context.Context, args map[string]any) Result {
	id, _ := args["sessionId"].(string)
	if id == "" {
		return errorResult("sessionId is required")
	}

	session, err := d.store.Get(ctx, id)
	if err != nil {
		return errorResult("validation session %q not found", id)
	}
	return Result{Success: true, Data: session}
}

func (d *Dispatcher) updateValidationSession(ctx context.Context, args map[string]any) Result {
	id, _ := args["sessionId"].(string)
	if id == "" {
		return errorResult("sessionId is required")
	}

	script, scriptChanged := args["script"].(string)
	scriptContext, contextSet, err := objectArg(args, "context")
	if err != nil {
		return errorResult("%v", err)
	}
	metadata, _, err := objectArg(args, "metadata")
	if err != nil {
		return errorResult("%v", err)
	}

	session, err := d.store.Update(ctx, id, func(s *sessions.Session) {
		if scriptChanged {
			s.Script = script
		}
		if contextSet {
			s.Context = scriptContext
		}
		if s.Metadata == nil {
			s.Metadata = map[string]any{}
		}
		for key, value := range metadata {
			s.Metadata[key] = value
		}
	})
	if err != nil {
		return errorResult("validation session %q not found", id)
	}

	if scriptChanged {
		validation := d.runValidation(ctx, session.Script, session.Context)
		session, err = d.store.Update(ctx, id, func(s *sessions.Session) {
			s.ValidationResult = validation
		})
		if err != nil {
			return errorResult("validation session %q not found", id)
		}
	}

	return Result{Success: true, Data: map[string]any{
		"sessionId":        session.ID,
		"updatedAt":        session.UpdatedAt,
		"validationResult": session.ValidationResult,
	}}
}

func (d *Dispatcher) listValidationSessions(ctx context.Context, args map[string]any) Result {
	all, err := d.store.List(ctx)
	if err != nil {
		d.logger.Error("listing validation sessions failed", "error", err)
		return errorResult("unable to list validation sessions")
	}

	summaries := make([]map[string]any, 0, len(all))
	for _, session := range all {
		summaries = append(summaries, map[string]any{
			"sessionId":     session.ID,
			"metadata":      session.Metadata,
			"hasValidation": session.ValidationResult != nil,
			"createdAt":     session.CreatedAt,
			"updatedAt":     session.UpdatedAt,
		})
	}

	return Result{Success: true, Data: map[string]any{
		"sessions": summaries,
		"total":    len(summaries),
	}}
}

func (d *Dispatcher) deleteValidationSession(ctx context.Context, args map[string]any) Result {
	id, _ := args["sessionId"].(string)
	if id == "" {
		return errorResult("sessionId is required")
	}

	if err := d.store.Delete(ctx, id); err != nil {
		return errorResult("validation session %q not found", id)
	}
	return Result{Success: true, Data: map[string]any{
		"message":   "validation session deleted",
		"sessionId": id,
	}}
}
