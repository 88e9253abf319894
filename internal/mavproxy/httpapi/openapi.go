package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openapi3 "github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
	"github.com/volantvm/mavproxy/internal/mavproxy/eventbus"
	"github.com/volantvm/mavproxy/internal/mavproxy/manager"
)

// serveOpenAPI returns an OpenAPI v3 JSON document describing this API.
func (h *Handler) serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	baseURL := ""
	if r.Host != "" {
		scheme := "http"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	spec, err := BuildOpenAPISpec(baseURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("build openapi: %v", err))
		return
	}
	data, err := json.Marshal(spec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("marshal openapi: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type apiOperation struct {
	path    string
	method  string
	id      string
	summary string
	tag     string
	request *openapi3.SchemaRef
	status  int
	result  *openapi3.SchemaRef
	errors  []int
}

// BuildOpenAPISpec constructs the OpenAPI document. A non-empty baseURL is
// listed as the server URL.
func BuildOpenAPISpec(baseURL string) (*openapi3.T, error) {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "mavproxy REST API",
			Version:     "v1",
			Description: "Control surface for the supervised MAVLink router.",
		},
		Servers:    openapi3.Servers{},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: openapi3.Schemas{}},
	}
	if baseURL != "" {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: baseURL})
	}

	schemas := spec.Components.Schemas
	// component registers v under name with an inlined schema and returns a
	// resolved reference to it.
	component := func(name string, v any) (*openapi3.SchemaRef, error) {
		inline, err := openapi3gen.NewSchemaRefForValue(v, nil)
		if err != nil {
			return nil, fmt.Errorf("openapi: %s schema: %w", name, err)
		}
		schemas[name] = openapi3.NewSchemaRef("", inline.Value)
		return openapi3.NewSchemaRef("#/components/schemas/"+name, inline.Value), nil
	}

	endpointRef, err := component("Endpoint", &endpoint.Endpoint{})
	if err != nil {
		return nil, err
	}
	routerRef, err := component("RouterInfo", &manager.RouterInfo{})
	if err != nil {
		return nil, err
	}
	statusRef, err := component("Status", &manager.Status{})
	if err != nil {
		return nil, err
	}
	commandRef, err := component("CommandResponse", &CommandResponse{})
	if err != nil {
		return nil, err
	}
	preferredRef, err := component("PreferredRequest", &PreferredRequest{})
	if err != nil {
		return nil, err
	}
	eventRef, err := component("RouterEvent", &eventbus.RouterEvent{})
	if err != nil {
		return nil, err
	}

	errorSchema := openapi3.NewSchemaRef("", &openapi3.Schema{
		Type: &openapi3.Types{openapi3.TypeObject},
		Properties: map[string]*openapi3.SchemaRef{
			"error": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		},
	})
	schemas["Error"] = errorSchema
	errorSchema = openapi3.NewSchemaRef("#/components/schemas/Error", errorSchema.Value)

	healthSchema := openapi3.NewObjectSchema()
	healthSchema.Properties = map[string]*openapi3.SchemaRef{
		"status": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
	}
	arrayOf := func(items *openapi3.SchemaRef) *openapi3.SchemaRef {
		s := openapi3.NewArraySchema()
		s.Items = items
		return openapi3.NewSchemaRef("", s)
	}

	ops := []apiOperation{
		{"/healthz", http.MethodGet, "getHealth", "Health check", "health", nil, http.StatusOK, openapi3.NewSchemaRef("", healthSchema), nil},
		{"/api/v1/routers", http.MethodGet, "listRouters", "List router backends in priority order", "routers", nil, http.StatusOK, arrayOf(routerRef), nil},
		{"/api/v1/routers/preferred", http.MethodPut, "setPreferredRouter", "Set the preferred router backend", "routers", preferredRef, http.StatusNoContent, nil, []int{http.StatusBadRequest}},
		{"/api/v1/endpoints", http.MethodGet, "listEndpoints", "List subordinate endpoints", "endpoints", nil, http.StatusOK, arrayOf(endpointRef), []int{http.StatusInternalServerError}},
		{"/api/v1/endpoints", http.MethodPost, "addEndpoint", "Add a subordinate endpoint", "endpoints", endpointRef, http.StatusCreated, endpointRef, []int{http.StatusBadRequest, http.StatusConflict}},
		{"/api/v1/endpoints/{name}", http.MethodDelete, "removeEndpoint", "Remove a subordinate endpoint", "endpoints", nil, http.StatusNoContent, nil, []int{http.StatusNotFound, http.StatusConflict}},
		{"/api/v1/master", http.MethodGet, "getMaster", "Show the master endpoint", "master", nil, http.StatusOK, endpointRef, nil},
		{"/api/v1/master", http.MethodPut, "setMaster", "Replace the master endpoint", "master", endpointRef, http.StatusOK, endpointRef, []int{http.StatusBadRequest}},
		{"/api/v1/router/status", http.MethodGet, "getRouterStatus", "Router process status", "router", nil, http.StatusOK, statusRef, nil},
		{"/api/v1/router/command", http.MethodGet, "getRouterCommand", "Preview the router command line", "router", nil, http.StatusOK, commandRef, []int{http.StatusServiceUnavailable}},
		{"/api/v1/router/start", http.MethodPost, "startRouter", "Start the router process", "router", nil, http.StatusOK, statusRef, []int{http.StatusConflict, http.StatusServiceUnavailable}},
		{"/api/v1/router/stop", http.MethodPost, "stopRouter", "Stop the router process", "router", nil, http.StatusOK, statusRef, []int{http.StatusConflict}},
		{"/api/v1/router/restart", http.MethodPost, "restartRouter", "Restart the router process", "router", nil, http.StatusOK, statusRef, []int{http.StatusServiceUnavailable}},
		{"/api/v1/events", http.MethodGet, "streamEvents", "Websocket stream of router lifecycle events", "events", nil, http.StatusSwitchingProtocols, eventRef, nil},
	}

	nameParam := &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:     "name",
		In:       openapi3.ParameterInPath,
		Required: true,
		Schema:   openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
	}}

	for _, o := range ops {
		op := openapi3.NewOperation()
		op.OperationID = o.id
		op.Summary = o.summary
		op.Tags = []string{o.tag}
		if strings.Contains(o.path, "{name}") {
			op.Parameters = openapi3.Parameters{nameParam}
		}
		if o.request != nil {
			op.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(o.request),
			}}
		}
		op.Responses = openapi3.NewResponses()
		ok := openapi3.NewResponse().WithDescription(http.StatusText(o.status))
		if o.result != nil {
			ok.Content = openapi3.NewContentWithJSONSchemaRef(o.result)
		}
		op.Responses.Set(fmt.Sprint(o.status), &openapi3.ResponseRef{Value: ok})
		for _, code := range o.errors {
			resp := openapi3.NewResponse().WithDescription(http.StatusText(code))
			resp.Content = openapi3.NewContentWithJSONSchemaRef(errorSchema)
			op.Responses.Set(fmt.Sprint(code), &openapi3.ResponseRef{Value: resp})
		}
		spec.AddOperation(o.path, o.method, op)
	}

	return spec, nil
}
