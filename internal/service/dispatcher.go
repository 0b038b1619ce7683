package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flapi-dev/flapi/internal/domain/auth"
	"github.com/flapi-dev/flapi/internal/domain/endpoint"
	"github.com/flapi-dev/flapi/internal/domain/session"
	"github.com/flapi-dev/flapi/internal/port/outbound"
	"github.com/flapi-dev/flapi/pkg/mcp"
)

// ServerInfo identifies the server in initialize responses and the
// health endpoint.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// handlerFunc is one JSON-RPC method implementation.
type handlerFunc func(ctx context.Context, req *mcp.Request) *mcp.Response

// Dispatcher is the MCP protocol state machine: it parses the JSON-RPC
// envelope, resolves the session, applies the protocol-level auth
// policy, and dispatches to the method handlers registered at
// construction.
type Dispatcher struct {
	sessions     *session.Manager
	authHandler  *MCPAuthHandler
	discovery    *Discovery
	repo         endpoint.Repository
	executor     outbound.QueryExecutor
	logLevel     *slog.LevelVar
	logger       *slog.Logger
	serverInfo   ServerInfo
	instructions string

	handlers map[string]handlerFunc
}

// NewDispatcher wires the dispatcher and registers its method table.
func NewDispatcher(
	sessions *session.Manager,
	authHandler *MCPAuthHandler,
	discovery *Discovery,
	repo endpoint.Repository,
	executor outbound.QueryExecutor,
	logLevel *slog.LevelVar,
	serverInfo ServerInfo,
	instructions string,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sessions:     sessions,
		authHandler:  authHandler,
		discovery:    discovery,
		repo:         repo,
		executor:     executor,
		logLevel:     logLevel,
		logger:       logger,
		serverInfo:   serverInfo,
		instructions: instructions,
	}
	d.handlers = map[string]handlerFunc{
		"initialize":          d.handleInitialize,
		"tools/list":          d.handleToolsList,
		"tools/call":          d.handleToolsCall,
		"resources/list":      d.handleResourcesList,
		"resources/read":      d.handleResourcesRead,
		"prompts/list":        d.handlePromptsList,
		"prompts/get":         d.handlePromptsGet,
		"completion/complete": d.handleCompletionComplete,
		"logging/setLevel":    d.handleLoggingSetLevel,
		"ping":                d.handlePing,
	}
	return d
}

// Dispatch runs one JSON-RPC exchange. It returns the response and the
// id of the session it belongs to; an empty session id means no
// session header should be emitted (pre-session failures only).
func (d *Dispatcher) Dispatch(ctx context.Context, r *http.Request, body []byte) (*mcp.Response, string) {
	sessionID := r.Header.Get(mcp.SessionHeader)

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return mcp.NewError(mcp.RequestID{}, mcp.ParseError, "Parse error: "+err.Error()), ""
	}
	if req.Method == "" {
		// An existing session is still echoed; no new one is created
		// for a malformed envelope.
		if _, err := d.sessions.Get(sessionID); err != nil {
			sessionID = ""
		}
		return mcp.NewError(req.ID, mcp.InvalidRequest, "Invalid Request: method must be a non-empty string"), sessionID
	}

	d.logger.Debug("mcp request", "method", req.Method, "id", req.ID.String())

	// Initialize is authenticated before any session exists so a
	// failure never leaves a half-created session behind.
	var boundAuth *auth.Context
	if req.Method == "initialize" && d.authHandler.MethodRequiresAuth("initialize") {
		authCtx, err := d.authHandler.Authenticate(ctx, r)
		if err != nil {
			d.logger.Warn("initialize authentication failed", "error", err)
			return mcp.NewError(req.ID, mcp.AuthRequired, "Authentication required"), ""
		}
		boundAuth = authCtx
	}

	// Session resolution: an unknown or missing id yields a fresh
	// session rather than an error, with whatever auth context the
	// initialize step produced.
	sess, err := d.sessions.Get(sessionID)
	if err != nil {
		newID, createErr := d.sessions.Create(boundAuth)
		if createErr != nil {
			return mcp.NewError(req.ID, mcp.InternalError, "Internal error: "+createErr.Error()), ""
		}
		sessionID = newID
		sess, _ = d.sessions.Get(sessionID)
	} else {
		d.sessions.Touch(sessionID)
	}

	// Per-method gate. Initialize was already handled above; other
	// methods reuse the session's bound context, never re-authenticate.
	if req.Method != "initialize" && d.authHandler.MethodRequiresAuth(req.Method) {
		if sess == nil || !sess.IsAuthenticated() {
			return mcp.NewError(req.ID, mcp.AuthRequired, "Authentication required"), sessionID
		}
	}

	handler, ok := d.handlers[req.Method]
	if !ok {
		return mcp.NewError(req.ID, mcp.MethodNotFound, "Method not found: "+req.Method), sessionID
	}
	return handler(ctx, &req), sessionID
}

// Teardown closes the session named by the header and reports it
// closed. A missing header is a session error, not a protocol error.
func (d *Dispatcher) Teardown(sessionID string) *mcp.Response {
	if sessionID == "" {
		return mcp.NewError(mcp.RequestID{}, mcp.SessionError, "No session to close")
	}
	d.sessions.Remove(sessionID)
	d.logger.Debug("session closed", "session_id", sessionID)
	return mcp.NewResult(mcp.RequestID{}, map[string]string{
		"session_id": sessionID,
		"status":     "closed",
	})
}

// decodeParams unmarshals request params into v. Absent params leave v
// at its zero value.
func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, v)
}

type serverCapabilities struct {
	Tools struct {
		ListChanged bool `json:"listChanged"`
	} `json:"tools"`
	Resources struct {
		Subscribe   bool `json:"subscribe"`
		ListChanged bool `json:"listChanged"`
	} `json:"resources"`
	Prompts struct {
		ListChanged bool `json:"listChanged"`
	} `json:"prompts"`
	Logging struct{} `json:"logging"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

func (d *Dispatcher) handleInitialize(_ context.Context, req *mcp.Request) *mcp.Response {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if err := decodeParams(req.Params, &params); err != nil {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}

	result := initializeResult{
		ProtocolVersion: mcp.NegotiateProtocolVersion(params.ProtocolVersion),
		ServerInfo:      d.serverInfo,
		Instructions:    d.instructions,
	}
	result.Capabilities.Tools.ListChanged = true
	result.Capabilities.Resources.ListChanged = true
	result.Capabilities.Prompts.ListChanged = true

	d.logger.Info("session initialized",
		"client_version", params.ProtocolVersion,
		"negotiated_version", result.ProtocolVersion)
	return mcp.NewResult(req.ID, result)
}

func (d *Dispatcher) handleToolsList(_ context.Context, req *mcp.Request) *mcp.Response {
	return mcp.NewResult(req.ID, map[string]any{"tools": d.discovery.Tools()})
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := decodeParams(req.Params, &params); err != nil {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}
	if params.Name == "" {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: missing 'name' field")
	}

	ep, err := endpoint.FindTool(d.repo, params.Name)
	if err != nil {
		return mcp.NewError(req.ID, mcp.MethodNotFound, "Unknown tool: "+params.Name)
	}

	rows, err := d.executor.Execute(ctx, ep.TemplateSource, params.Arguments)
	if err != nil {
		return mcp.NewError(req.ID, mcp.InternalError, "Tool execution failed: "+err.Error())
	}
	text, err := json.Marshal(rows)
	if err != nil {
		return mcp.NewError(req.ID, mcp.InternalError, "Tool execution failed: "+err.Error())
	}
	return mcp.NewResult(req.ID, mcp.TextToolResult(string(text)))
}

func (d *Dispatcher) handleResourcesList(_ context.Context, req *mcp.Request) *mcp.Response {
	return mcp.NewResult(req.ID, map[string]any{"resources": d.discovery.Resources()})
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := decodeParams(req.Params, &params); err != nil {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}
	if params.URI == "" {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: missing 'uri' field")
	}

	name, ok := strings.CutPrefix(params.URI, ResourceURIScheme)
	if !ok {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Resource not found: "+params.URI)
	}
	ep, err := endpoint.FindResource(d.repo, name)
	if err != nil {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Resource not found: "+params.URI)
	}

	// Resources take no caller-supplied parameters.
	rows, err := d.executor.Execute(ctx, ep.TemplateSource, nil)
	if err != nil {
		return mcp.NewError(req.ID, mcp.InternalError, "Resource read error: "+err.Error())
	}
	if len(rows) == 0 {
		return mcp.NewError(req.ID, mcp.InternalError, "Resource query returned no data")
	}
	text, err := json.Marshal(rows)
	if err != nil {
		return mcp.NewError(req.ID, mcp.InternalError, "Resource read error: "+err.Error())
	}
	return mcp.NewResult(req.ID, mcp.ResourceContents{Contents: []mcp.Content{{
		URI:      ResourceURIScheme + ep.Resource.Name,
		MimeType: ep.Resource.MimeType,
		Text:     string(text),
	}}})
}

func (d *Dispatcher) handlePromptsList(_ context.Context, req *mcp.Request) *mcp.Response {
	return mcp.NewResult(req.ID, map[string]any{"prompts": d.discovery.Prompts()})
}

func (d *Dispatcher) handlePromptsGet(_ context.Context, req *mcp.Request) *mcp.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := decodeParams(req.Params, &params); err != nil {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}
	if params.Name == "" {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: missing 'name' field")
	}

	ep, err := endpoint.FindPrompt(d.repo, params.Name)
	if err != nil {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Prompt not found: "+params.Name)
	}

	text := expandPromptTemplate(ep.Prompt.Template, ep.Prompt.Arguments, params.Arguments)
	return mcp.NewResult(req.ID, mcp.PromptResult{
		Description: ep.Prompt.Description,
		Messages: []mcp.PromptMessage{{
			Role:    "user",
			Content: mcp.PromptContent{Type: "text", Text: text},
		}},
	})
}

// expandPromptTemplate substitutes {{name}} placeholders for each
// declared argument. Missing arguments become empty strings; placeholders
// outside the declared list stay verbatim.
func expandPromptTemplate(template string, declared []string, args map[string]any) string {
	for _, name := range declared {
		replacement := ""
		if v, ok := args[name]; ok && v != nil {
			if s, isString := v.(string); isString {
				replacement = s
			} else if dumped, err := json.Marshal(v); err == nil {
				replacement = string(dumped)
			}
		}
		template = strings.ReplaceAll(template, "{{"+name+"}}", replacement)
	}
	return template
}

// completionLimit caps the suggestions returned per completion call.
const completionLimit = 50

func (d *Dispatcher) handleCompletionComplete(_ context.Context, req *mcp.Request) *mcp.Response {
	var params struct {
		Ref      string `json:"ref"`
		Argument string `json:"argument"`
		Value    string `json:"value"`
	}
	if err := decodeParams(req.Params, &params); err != nil {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}
	if params.Ref == "" || params.Argument == "" {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: missing 'ref' or 'argument' field")
	}

	ep, err := endpoint.FindToolOrPrompt(d.repo, params.Ref)
	if err != nil {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Reference not found: "+params.Ref)
	}
	field := ep.Field(params.Argument)
	if field == nil {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Argument not found: "+params.Argument)
	}

	// Only enum-validated fields produce suggestions; everything else
	// yields an empty list, never an error.
	result := mcp.CompletionResult{Values: []string{}}
	if ev := field.EnumValidator(); ev != nil {
		for _, value := range ev.AllowedValues {
			if params.Value != "" && !strings.HasPrefix(value, params.Value) {
				continue
			}
			result.Total++
			if len(result.Values) < completionLimit {
				result.Values = append(result.Values, value)
			}
		}
		result.HasMore = result.Total > len(result.Values)
	}
	return mcp.NewResult(req.ID, result)
}

func (d *Dispatcher) handleLoggingSetLevel(_ context.Context, req *mcp.Request) *mcp.Response {
	var params struct {
		Level string `json:"level"`
	}
	if err := decodeParams(req.Params, &params); err != nil {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: 'level' must be a string")
	}
	if params.Level == "" {
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid params: missing 'level' field")
	}

	// The eight MCP levels collapse onto the four slog levels.
	var level slog.Level
	switch params.Level {
	case "debug":
		level = slog.LevelDebug
	case "info", "notice":
		level = slog.LevelInfo
	case "warning":
		level = slog.LevelWarn
	case "error", "critical", "alert", "emergency":
		level = slog.LevelError
	default:
		return mcp.NewError(req.ID, mcp.InvalidParams, "Invalid log level: "+params.Level)
	}

	d.logger.Info("setting log level", "level", params.Level)
	d.logLevel.Set(level)
	return mcp.NewResult(req.ID, struct{}{})
}

func (d *Dispatcher) handlePing(_ context.Context, req *mcp.Request) *mcp.Response {
	return mcp.NewResult(req.ID, struct{}{})
}
