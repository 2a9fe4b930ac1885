package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/component"
	"github.com/eijnar/es-daily-ingest-calculator/health"
	"github.com/eijnar/es-daily-ingest-calculator/types"
)

var _ HTTPHandler = (*ComponentManager)(nil)

// componentDisplayNames maps factory IDs to the labels a config UI shows.
var componentDisplayNames = map[string]string{
	"clusterscan":   "Cluster Scan Input",
	"csvfile":       "CSV Replay Input",
	"classify":      "Index Classifier",
	"dsaggregate":   "Data Stream Aggregator",
	"csvreport":     "CSV Report Output",
	"bulkload":      "Bulk Load Output",
	"snapshotstore": "Snapshot Store",
}

func displayNameFor(id string) string {
	if name, ok := componentDisplayNames[id]; ok {
		return name
	}
	return id
}

// requireGet rejects non-GET requests and reports whether to continue.
func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// configFor returns the stored config entry for an instance. Callers
// hold cm.mu.
func (cm *ComponentManager) configFor(name string) (types.ComponentConfig, bool) {
	cfg, ok := cm.componentConfigs[name]
	return cfg, ok
}

// writeJSON encodes v directly as the response body; encode failures are
// only logged since the headers may already be out.
func (cm *ComponentManager) writeJSON(w http.ResponseWriter, what string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		cm.logger.Error("encode "+what+" failed", "error", err)
	}
}

// writeBufferedJSON encodes into a buffer first so an encode failure can
// still return a clean 500.
func (cm *ComponentManager) writeBufferedJSON(w http.ResponseWriter, what string, response any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(response); err != nil {
		cm.logger.Error("encode "+what+" failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(buf.Bytes()); err != nil {
		cm.logger.Error("write "+what+" failed", "error", err)
	}
}

// extractComponentName pulls the last path segment and rejects anything
// that decodes to a traversal attempt.
func extractComponentName(path string) (string, bool) {
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) < 2 {
		return "", false
	}

	switch name := parts[len(parts)-1]; name {
	case "", ".", "..":
		return "", false
	default:
		// reject traversal after decoding, not before
		decoded, err := url.QueryUnescape(name)
		if err != nil || strings.ContainsAny(decoded, `/\`) {
			return "", false
		}
		return decoded, true
	}
}

// RegisterHTTPHandlers mounts the component API: health, listing, type
// metadata, per-component status and config, and the flow topology views.
func (cm *ComponentManager) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	cm.logger.Info("component endpoints mounted", "prefix", prefix)

	mux.HandleFunc(prefix+"list", cm.handleComponentsList)
	mux.HandleFunc(prefix+"health", cm.handleComponentsHealth)
	mux.HandleFunc(prefix+"status/", cm.handleComponentStatus)
	mux.HandleFunc(prefix+"config/", cm.handleComponentConfig)
	mux.HandleFunc(prefix+"types", cm.handleComponentTypes)
	mux.HandleFunc(prefix+"types/", cm.handleComponentTypeByID)

	mux.HandleFunc(prefix+"flowgraph", cm.handleFlowGraph)
	mux.HandleFunc(prefix+"paths", cm.handleFlowPaths)
	mux.HandleFunc(prefix+"gaps", cm.handleFlowGaps)
	mux.HandleFunc(prefix+"validate", cm.handleFlowValidation)
}

// OpenAPISpec describes the component endpoints for the aggregated API
// document. Every endpoint is a GET returning JSON, so the path specs
// are built from two small constructors.
func (cm *ComponentManager) OpenAPISpec() *OpenAPISpec {
	getOp := func(summary, description, okDesc string, tags ...string) PathSpec {
		return PathSpec{GET: &OperationSpec{
			Summary:     summary,
			Description: description,
			Tags:        tags,
			Responses: map[string]ResponseSpec{
				"200": {Description: okDesc, ContentType: "application/json"},
			},
		}}
	}
	namedOp := func(summary, description, okDesc string) PathSpec {
		spec := getOp(summary, description, okDesc, "Components")
		spec.GET.Parameters = []ParameterSpec{{
			Name:        "name",
			In:          "path",
			Required:    true,
			Description: "Component name",
			Schema:      Schema{Type: "string"},
		}}
		spec.GET.Responses["404"] = ResponseSpec{Description: "Component not found"}
		return spec
	}

	return &OpenAPISpec{
		Paths: map[string]PathSpec{
			"/health": getOp("Get component health status",
				"Returns aggregated health status for all managed components",
				"Component health information", "Components"),
			"/list": getOp("List all components",
				"Returns a list of all managed components with basic information",
				"List of components", "Components"),
			"/status/{name}": namedOp("Get component status",
				"Returns detailed status for a specific component",
				"Component status"),
			"/config/{name}": namedOp("Get component configuration",
				"Returns the current configuration for a specific component",
				"Component configuration"),
			"/flowgraph": getOp("Get component flow topology",
				"Returns the port-level topology with nodes and subject-matched connections for all managed components",
				"Flow topology with nodes and connections", "Components", "Flow"),
			"/validate": getOp("Validate component flow connectivity",
				"Performs flow connectivity analysis for operational validation (used by E2E tests)",
				"Flow connectivity analysis results", "Components", "Flow"),
			"/gaps": getOp("Get component flow gaps",
				"Returns disconnected ports and starved sink components in the component flow",
				"Component flow gaps and disconnected nodes", "Components", "Flow"),
			"/paths": getOp("Get component data paths",
				"Returns data paths from input components to all reachable components",
				"Data paths through component graph", "Components", "Flow"),
		},
		Tags: []TagSpec{
			{Name: "Components", Description: "Component management and monitoring endpoints"},
			{Name: "Flow", Description: "Component flow analysis and connectivity validation endpoints"},
		},
	}
}

// handleComponentsHealth reports each component's health plus the
// aggregate. A single unhealthy component turns the aggregate unhealthy
// and the response 503.
func (cm *ComponentManager) handleComponentsHealth(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	var healthStatuses []health.Status
	for name, compHealth := range cm.GetComponentHealth() {
		healthStatuses = append(healthStatuses, health.FromComponentHealth(name, compHealth))
	}
	overallHealth := health.Aggregate("components", healthStatuses)

	response := struct {
		Overall    health.Status   `json:"overall"`
		Components []health.Status `json:"components"`
		Total      int             `json:"total"`
	}{overallHealth, healthStatuses, len(healthStatuses)}

	w.Header().Set("Content-Type", "application/json")
	if overallHealth.IsUnhealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	// degraded is still 200, callers read the body

	if err := json.NewEncoder(w).Encode(response); err != nil {
		cm.logger.Error("encode health response failed", "error", err)
	}
}

// handleComponentsList returns name, state, type and health for every
// managed component.
func (cm *ComponentManager) handleComponentsList(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	list := make([]map[string]any, 0, len(cm.components))
	for name, mc := range cm.components {
		row := map[string]any{"name": name, "state": mc.State.String()}
		if compConfig, ok := cm.configFor(name); ok {
			row["type"] = string(compConfig.Type)
			row["enabled"] = compConfig.Enabled
		}

		h := mc.Component.Health()
		row["healthy"] = h.Healthy
		if h.LastError != "" {
			row["last_error"] = h.LastError
		}
		list = append(list, row)
	}

	cm.writeJSON(w, "component list", list)
}

// handleComponentTypes lists every registered factory with its schema so
// a deployment tool can render a config form per component type.
func (cm *ComponentManager) handleComponentTypes(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	factories := cm.registry.ListFactories()
	componentTypes := make([]map[string]any, 0, len(factories))
	for id, registration := range factories {
		componentTypes = append(componentTypes, cm.componentTypeInfo(id, registration))
	}

	cm.writeJSON(w, "component types", componentTypes)
}

// handleComponentTypeByID returns the metadata and schema for one
// component type.
func (cm *ComponentManager) handleComponentTypeByID(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	typeID, ok := extractComponentName(r.URL.Path)
	if !ok {
		http.Error(w, "Invalid component type", http.StatusBadRequest)
		return
	}

	registration, found := cm.registry.ListFactories()[typeID]
	if !found {
		http.Error(w, fmt.Sprintf(`{"error":"Component type %s not found"}`, typeID), http.StatusNotFound)
		return
	}

	cm.writeJSON(w, "component type", cm.componentTypeInfo(typeID, registration))
}

// componentTypeInfo is the JSON shape of one factory in the types API.
func (cm *ComponentManager) componentTypeInfo(id string, registration *component.Registration) map[string]any {
	schema, err := cm.registry.GetComponentSchema(id)
	if err != nil {
		cm.logger.Warn("component type has no schema", "component_type", id, "error", err)
	}

	return map[string]any{
		"id":          id,
		"name":        displayNameFor(id),
		"type":        registration.Type, // input, processor, output, storage
		"protocol":    registration.Protocol,
		"domain":      registration.Domain,
		"description": registration.Description,
		"version":     registration.Version,
		"category":    registration.Type, // the UI groups by category
		"schema":      schema,
	}
}

// handleComponentStatus returns lifecycle state, start order and health
// for one component.
func (cm *ComponentManager) handleComponentStatus(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	name, ok := extractComponentName(r.URL.Path)
	if !ok {
		http.Error(w, "Invalid component name", http.StatusBadRequest)
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	mc, found := cm.components[name]
	if !found {
		http.NotFound(w, r)
		return
	}

	status := map[string]any{"name": name, "state": mc.State.String(), "start_order": mc.StartOrder}
	if compConfig, hasCfg := cm.configFor(name); hasCfg {
		status["type"] = string(compConfig.Type)
		status["enabled"] = compConfig.Enabled
	}

	h := mc.Component.Health()
	status["healthy"] = h.Healthy
	if h.LastError != "" {
		status["last_error"] = h.LastError
		status["error_count"] = h.ErrorCount
	}
	if h.Uptime > 0 {
		status["uptime_seconds"] = h.Uptime.Seconds()
	}
	if mc.LastError != nil && h.LastError == "" {
		status["lifecycle_error"] = mc.LastError.Error()
	}

	cm.writeJSON(w, "component status", status)
}

// handleComponentConfig dispatches config reads and updates.
func (cm *ComponentManager) handleComponentConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		cm.handlePutComponentConfig(w, r)
	case http.MethodGet:
		cm.handleGetComponentConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetComponentConfig returns the stored config block for one
// component.
func (cm *ComponentManager) handleGetComponentConfig(w http.ResponseWriter, r *http.Request) {
	name, ok := extractComponentName(r.URL.Path)
	if !ok {
		http.Error(w, "Invalid component name", http.StatusBadRequest)
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if _, found := cm.components[name]; !found {
		http.NotFound(w, r)
		return
	}

	var body any = map[string]any{"message": "No configuration available for this component"}
	if compConfig, hasCfg := cm.configFor(name); hasCfg {
		body = map[string]any{
			"name":    compConfig.Name,
			"type":    compConfig.Type,
			"enabled": compConfig.Enabled,
			"config":  json.RawMessage(compConfig.Config),
		}
	}

	cm.writeJSON(w, "component config", body)
}

// handlePutComponentConfig validates a new config block against the
// component's schema, stores it, and applies it live when the component
// supports runtime updates.
func (cm *ComponentManager) handlePutComponentConfig(w http.ResponseWriter, r *http.Request) {
	name, ok := extractComponentName(r.URL.Path)
	if !ok {
		http.Error(w, "Invalid component name", http.StatusBadRequest)
		return
	}

	cm.mu.RLock()
	mc, found := cm.components[name]
	cm.mu.RUnlock()
	if !found {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Config json.RawMessage `json:"config"`
	}
	if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", decodeErr), http.StatusBadRequest)
		return
	}

	var factory string
	if compConfig, hasCfg := cm.configFor(name); hasCfg {
		factory = compConfig.Name // factory name, not the instance name
	}
	if factory == "" {
		cm.logger.Warn("component type unknown, cannot validate config", "component_name", name)
		http.Error(w, "Component type not found", http.StatusInternalServerError)
		return
	}

	if cm.configManager != nil {
		validationErrors := cm.configManager.ValidateComponentConfig(r.Context(), cm.registry, factory, req.Config)
		if len(validationErrors) > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			cm.writeJSON(w, "config validation errors", map[string]any{"errors": validationErrors})
			return
		}
	}

	cm.mu.Lock()
	if compConfig, hasCfg := cm.configFor(name); hasCfg {
		compConfig.Config = req.Config
		cm.componentConfigs[name] = compConfig
	}
	cm.mu.Unlock()

	if configurable, runtime := mc.Component.(interface {
		UpdateConfig(ctx context.Context, config json.RawMessage) error
	}); runtime {
		if applyErr := configurable.UpdateConfig(r.Context(), req.Config); applyErr != nil {
			cm.logger.Error("config update failed to apply", "component_name", name, "error", applyErr)
			http.Error(w, fmt.Sprintf("Failed to apply config: %v", applyErr), http.StatusInternalServerError)
			return
		}
	}

	cm.writeJSON(w, "config update result", map[string]any{
		"status":  "success",
		"message": "Configuration updated successfully",
	})
}

// handleFlowGraph returns the port-level topology: every component port
// as a node, every subject match as an edge.
func (cm *ComponentManager) handleFlowGraph(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	analysis := cm.GetFlowAnalysis()

	response := map[string]any{
		"nodes": analysis.Ports,
		"edges": analysis.Connections,
		"metadata": map[string]any{
			"timestamp":  analysis.GeneratedAt,
			"node_count": len(analysis.Ports),
			"edge_count": len(analysis.Connections),
			"graph_type": "component_flow",
		},
	}

	cm.writeBufferedJSON(w, "flow topology", response)
}

// handleFlowValidation reports whether every pipeline stage is wired:
// connections found, gaps found, and an overall status.
func (cm *ComponentManager) handleFlowValidation(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	analysis := cm.GetFlowAnalysis()

	response := map[string]any{
		"timestamp":         time.Now().UTC(),
		"validation_status": analysis.Status,
		"connections":       analysis.Connections,
		"gaps":              analysis.Gaps,
		"summary": map[string]any{
			"total_components":  len(analysis.Ports),
			"total_connections": len(analysis.Connections),
			"gap_count":         len(analysis.Gaps),
		},
	}

	// always 200; callers read validation_status from the body
	cm.writeBufferedJSON(w, "flow validation", response)
}

// handleFlowGaps separates gaps that starve a component from gaps that
// just leave an auxiliary stream unconsumed.
func (cm *ComponentManager) handleFlowGaps(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	analysis := cm.GetFlowAnalysis()
	sinkGaps := cm.DetectSinkGaps()

	criticalPorts := 0
	// An input port with no publisher starves its component; an output port
	// with no subscriber usually means nothing consumes that stream yet.
	optionalPorts := 0
	for _, gap := range analysis.Gaps {
		if gap.Issue == "no_publishers" {
			criticalPorts++
		} else {
			optionalPorts++
		}
	}

	response := map[string]any{
		"timestamp":      time.Now().UTC(),
		"orphaned_ports": analysis.Gaps,
		"sink_gaps":      sinkGaps,
		"summary": map[string]any{
			"total_gaps":          criticalPorts,
			"critical_gaps":       criticalPorts,
			"optional_gaps":       optionalPorts,
			"orphaned_port_count": len(analysis.Gaps),
			"critical_port_count": criticalPorts,
			"optional_port_count": optionalPorts,
			"sink_gap_count":      len(sinkGaps),
			"has_issues":          criticalPorts > 0 || len(sinkGaps) > 0,
		},
	}

	cm.writeBufferedJSON(w, "flow gaps", response)
}

// handleFlowPaths traces the reachable pipeline from each input: for the
// default deployment, scan input through classifier and aggregator to the
// outputs.
func (cm *ComponentManager) handleFlowPaths(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	paths := cm.GetFlowPaths()

	longest, reached := 0, 0
	for _, path := range paths {
		longest = max(longest, len(path))
		reached += len(path)
	}
	var avgLength float64
	if len(paths) > 0 {
		avgLength = float64(reached) / float64(len(paths))
	}

	response := map[string]any{
		"timestamp": time.Now().UTC(),
		"paths":     paths,
		"statistics": map[string]any{
			"input_component_count": len(paths),
			"max_path_length":       longest,
			"avg_path_length":       avgLength,
			"total_reachable":       reached,
		},
	}
	cm.writeBufferedJSON(w, "flow paths", response)
}
