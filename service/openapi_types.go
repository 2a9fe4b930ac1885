// OpenAPI document types for the manager's aggregated HTTP API spec.
package service

import "net/http"

// HTTPHandler is implemented by services that expose HTTP endpoints and
// contribute a fragment to the aggregated OpenAPI document.
type HTTPHandler interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
	OpenAPISpec() *OpenAPISpec
}

// OpenAPIDocument is the complete OpenAPI 3.0 document served at
// /openapi.json, merged from every service's fragment.
type OpenAPIDocument struct {
	OpenAPI string              `json:"openapi"`
	Info    InfoSpec            `json:"info"`
	Servers []ServerSpec        `json:"servers"`
	Paths   map[string]PathSpec `json:"paths"`
	Tags    []TagSpec           `json:"tags,omitempty"`
}

// OpenAPISpec is one service's fragment of the API document.
type OpenAPISpec struct {
	Paths map[string]PathSpec `json:"paths"`
	Tags  []TagSpec           `json:"tags,omitempty"`
}

// PathSpec holds the operations available on one path.
type PathSpec struct {
	GET    *OperationSpec `json:"get,omitempty"`
	POST   *OperationSpec `json:"post,omitempty"`
	PUT    *OperationSpec `json:"put,omitempty"`
	DELETE *OperationSpec `json:"delete,omitempty"`
}

// OperationSpec describes a single HTTP operation.
type OperationSpec struct {
	Summary     string                  `json:"summary"`
	Description string                  `json:"description,omitempty"`
	Parameters  []ParameterSpec         `json:"parameters,omitempty"`
	Responses   map[string]ResponseSpec `json:"responses"`
	Tags        []string                `json:"tags,omitempty"`
}

// ParameterSpec describes one operation parameter.
type ParameterSpec struct {
	Name        string `json:"name"`
	In          string `json:"in"` // "query", "path" or "header"
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Schema      Schema `json:"schema,omitempty"`
}

// ResponseSpec describes one operation response.
type ResponseSpec struct {
	Description string `json:"description"`
	ContentType string `json:"content_type,omitempty"`
}

// Schema is the type of a parameter or response value.
type Schema struct {
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
}

// InfoSpec carries the API title block.
type InfoSpec struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// ServerSpec names one server the API is reachable on.
type ServerSpec struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// TagSpec groups operations in the rendered documentation.
type TagSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
