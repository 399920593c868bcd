package mcpproto

import (
	"fmt"
	"net/url"
	"strings"
)

// ResourceScheme is the URI scheme resources/read accepts, per spec §4.9.
const ResourceScheme = "masc"

// Resource is one static or templated resource this server exposes.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate describes a parameterized resource URI pattern.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

// ResourceContent is the result of resources/read.
type ResourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	Text     string `json:"text"`
}

// ResourceReader resolves a parsed masc:// id (plus raw query values) into
// content, returning ("", false) for an unknown id.
type ResourceReader func(id string, query url.Values) (text, mimeType string, ok bool)

// ResourceCatalog is the static resources/list plus templates list, paired
// with a reader that actually resolves a masc:// URI.
type ResourceCatalog struct {
	Resources []Resource
	Templates []ResourceTemplate
	Read      ResourceReader
}

// ParseResourceURI splits a masc://<id>[?query] URI into id and query
// values. Returns an error for any other scheme.
func ParseResourceURI(raw string) (id string, query url.Values, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, err
	}
	if u.Scheme != ResourceScheme {
		return "", nil, fmt.Errorf("unsupported resource scheme %q, want %q", u.Scheme, ResourceScheme)
	}
	id = strings.TrimPrefix(u.Opaque, "")
	if id == "" {
		id = strings.TrimPrefix(u.Host+u.Path, "/")
	}
	return id, u.Query(), nil
}

// ReadResource resolves raw (a masc:// URI) against the catalog.
func (c *ResourceCatalog) ReadResource(raw string) (*ResourceContent, error) {
	id, query, err := ParseResourceURI(raw)
	if err != nil {
		return nil, InvalidParams(err.Error())
	}
	text, mimeType, ok := c.Read(id, query)
	if !ok {
		return nil, InvalidParams(fmt.Sprintf("unknown resource id %q", id))
	}
	return &ResourceContent{URI: raw, MIMEType: mimeType, Text: text}, nil
}
