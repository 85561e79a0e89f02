// Package apidoc builds the OpenAPI document served at /v3/api-docs from
// the router's route table.
package apidoc

import (
	"net/http"
	"strings"
)

const openAPIVersion = "3.0.3"

const defaultVersion = "1.0"

// Info is the API metadata registered at startup.
type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// NewInfo derives the metadata from the project name. An empty version
// falls back to "1.0".
func NewInfo(projectName, version string) Info {
	if version == "" {
		version = defaultVersion
	}
	return Info{
		Title:       projectName + " API",
		Version:     version,
		Description: "API documentation for " + projectName,
	}
}

// Route describes one registered endpoint. Path uses gin syntax (":id").
type Route struct {
	Method  string
	Path    string
	Summary string
	Tag     string
	Secured bool
}

type Document struct {
	OpenAPI    string                          `json:"openapi"`
	Info       Info                            `json:"info"`
	Paths      map[string]map[string]Operation `json:"paths"`
	Components Components                      `json:"components"`
}

type Operation struct {
	Summary   string                `json:"summary,omitempty"`
	Tags      []string              `json:"tags,omitempty"`
	Responses map[string]Response   `json:"responses"`
	Security  []map[string][]string `json:"security,omitempty"`
}

type Response struct {
	Description string `json:"description"`
}

type Components struct {
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes"`
}

type SecurityScheme struct {
	Type         string `json:"type"`
	Scheme       string `json:"scheme"`
	BearerFormat string `json:"bearerFormat,omitempty"`
}

const bearerScheme = "bearerAuth"

// Build assembles the document. Routes sharing a path are grouped under it.
func Build(info Info, routes []Route) Document {
	doc := Document{
		OpenAPI: openAPIVersion,
		Info:    info,
		Paths:   make(map[string]map[string]Operation, len(routes)),
		Components: Components{
			SecuritySchemes: map[string]SecurityScheme{
				bearerScheme: {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
			},
		},
	}

	for _, r := range routes {
		path := openAPIPath(r.Path)
		if doc.Paths[path] == nil {
			doc.Paths[path] = make(map[string]Operation)
		}

		op := Operation{
			Summary:   r.Summary,
			Responses: map[string]Response{"default": {Description: http.StatusText(http.StatusOK)}},
		}
		if r.Tag != "" {
			op.Tags = []string{r.Tag}
		}
		if r.Secured {
			op.Security = []map[string][]string{{bearerScheme: {}}}
		}
		doc.Paths[path][strings.ToLower(r.Method)] = op
	}

	return doc
}

// openAPIPath rewrites gin parameters (":id", "*rest") into "{id}".
func openAPIPath(ginPath string) string {
	segments := strings.Split(ginPath, "/")
	for i, s := range segments {
		if len(s) > 1 && (s[0] == ':' || s[0] == '*') {
			segments[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segments, "/")
}
