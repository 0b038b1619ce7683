package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/flapi-dev/flapi/internal/domain/endpoint"
)

// RegisterCustomValidators registers flapi-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: validates Go duration strings ("30m", "1h"). "0" disables.
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || s == "0" {
		return true
	}
	_, err := time.ParseDuration(s)
	return err == nil
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// TLS needs both halves of the key pair.
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server: tls_cert and tls_key must be set together")
	}

	return nil
}

// validateEndpoint checks one loaded endpoint definition. Errors here are
// fatal at startup.
func validateEndpoint(ep *endpoint.Endpoint) error {
	if !ep.IsRESTEndpoint() && !ep.IsMCPTool() && !ep.IsMCPResource() && !ep.IsMCPPrompt() {
		return errors.New("endpoint exposes nothing: set url-path or an mcp-tool/mcp-resource/mcp-prompt block")
	}

	if ep.IsRESTEndpoint() {
		if !strings.HasPrefix(ep.URLPath, "/") {
			return fmt.Errorf("url-path %q must start with /", ep.URLPath)
		}
		if ep.Method == "" {
			ep.Method = "GET"
		}
		switch strings.ToUpper(ep.Method) {
		case "GET", "POST", "PUT", "DELETE", "PATCH":
		default:
			return fmt.Errorf("unsupported method %q", ep.Method)
		}
	}

	if ep.Tool != nil && ep.Tool.Name == "" {
		return errors.New("mcp-tool: name is required")
	}
	if ep.Resource != nil && ep.Resource.Name == "" {
		return errors.New("mcp-resource: name is required")
	}
	if ep.Prompt != nil {
		if ep.Prompt.Name == "" {
			return errors.New("mcp-prompt: name is required")
		}
		if ep.Prompt.Template == "" {
			return errors.New("mcp-prompt: template is required")
		}
	}

	// Prompts carry their payload in the template; everything else
	// needs a SQL template to execute.
	if ep.TemplateSource == "" && !ep.IsMCPPrompt() {
		return errors.New("template-source or template-file is required")
	}

	if ep.Auth.Enabled && ep.Auth.Type == "" {
		return errors.New("auth: type is required when auth is enabled")
	}

	for i := range ep.RequestFields {
		f := &ep.RequestFields[i]
		if f.Name == "" {
			return fmt.Errorf("request[%d]: field-name is required", i)
		}
		for _, val := range f.Validators {
			if val.Type == "enum" && len(val.AllowedValues) == 0 {
				return fmt.Errorf("field %q: enum validator needs allowed-values", f.Name)
			}
		}
	}

	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a
// single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "file":
		return fmt.Sprintf("%s must be an existing file", field)
	case "duration":
		return fmt.Sprintf("%s must be a duration like \"30m\" or \"1h\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
