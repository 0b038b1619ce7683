package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flapi-dev/flapi/internal/domain/auth"
	"github.com/flapi-dev/flapi/internal/domain/endpoint"
	"github.com/flapi-dev/flapi/internal/port/outbound"
	"github.com/flapi-dev/flapi/internal/service"
)

// RESTHandler serves the configured REST endpoints. Each request is
// matched to an endpoint by exact path and HTTP method; endpoints with
// auth enabled are gated by their own verifier (Layer 2) before the
// query runs.
type RESTHandler struct {
	repo     endpoint.Repository
	executor outbound.QueryExecutor
	metrics  *Metrics

	// verifiers are built eagerly so configuration mistakes abort
	// startup instead of failing the first request.
	verifiers map[string]auth.Verifier
}

// NewRESTHandler builds the handler and the per-endpoint verifiers.
func NewRESTHandler(repo endpoint.Repository, factory *service.VerifierFactory, executor outbound.QueryExecutor, metrics *Metrics) (*RESTHandler, error) {
	h := &RESTHandler{
		repo:      repo,
		executor:  executor,
		metrics:   metrics,
		verifiers: make(map[string]auth.Verifier),
	}
	for _, ep := range repo.List() {
		if !ep.IsRESTEndpoint() || !ep.Auth.Enabled {
			continue
		}
		verifier, err := factory.ForEndpoint(&ep.Auth)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", ep.URLPath, err)
		}
		h.verifiers[verifierKey(ep.URLPath, ep.Method)] = verifier
	}
	return h, nil
}

func verifierKey(path, method string) string {
	return method + " " + path
}

func (h *RESTHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	ep, err := h.repo.FindForRequest(r.URL.Path, r.Method)
	if err != nil {
		writeRESTError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	ctx := r.Context()
	if ep.Auth.Enabled {
		verifier, ok := h.verifiers[verifierKey(ep.URLPath, ep.Method)]
		if !ok {
			// Configuration changed underneath us; refuse rather than
			// serve an unprotected endpoint.
			writeRESTError(w, http.StatusInternalServerError, "endpoint auth not initialized")
			return
		}
		authCtx, err := verifier.Authenticate(ctx, r)
		if err != nil {
			if h.metrics != nil {
				h.metrics.AuthFailuresTotal.WithLabelValues("endpoint").Inc()
			}
			logger.Debug("endpoint auth failed", "path", r.URL.Path, "error", err)
			w.Header().Set("WWW-Authenticate", challengeFor(ep.Auth.Type))
			writeRESTError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx = context.WithValue(ctx, AuthKey, authCtx)
	}

	params, err := h.collectParams(ep, r)
	if err != nil {
		writeRESTError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.executor.Execute(ctx, ep.TemplateSource, params)
	if err != nil {
		logger.Error("endpoint query failed", "path", r.URL.Path, "error", err)
		writeRESTError(w, http.StatusInternalServerError, "query execution failed")
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": rows})
}

// collectParams binds query string values to the endpoint's declared
// fields. Undeclared parameters are ignored; required fields must be
// present and enum-validated fields must carry an allowed value.
func (h *RESTHandler) collectParams(ep *endpoint.Endpoint, r *http.Request) (map[string]any, error) {
	query := r.URL.Query()
	params := make(map[string]any, len(ep.RequestFields))
	for i := range ep.RequestFields {
		f := &ep.RequestFields[i]
		if !query.Has(f.Name) {
			if f.Required {
				return nil, fmt.Errorf("missing required parameter %q", f.Name)
			}
			continue
		}
		value := query.Get(f.Name)
		if ev := f.EnumValidator(); ev != nil && !contains(ev.AllowedValues, value) {
			return nil, fmt.Errorf("invalid value for parameter %q", f.Name)
		}
		params[f.Name] = value
	}
	return params, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// challengeFor picks the WWW-Authenticate challenge for an auth type.
func challengeFor(authType string) string {
	switch authType {
	case "bearer", "jwt", "oidc":
		return `Bearer realm="flapi"`
	default:
		return `Basic realm="flapi"`
	}
}

func writeRESTError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

var _ http.Handler = (*RESTHandler)(nil)
