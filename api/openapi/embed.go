// Package openapi embeds the OpenAPI document of the JSON API.
package openapi

import _ "embed"

// Document is the OpenAPI document served at /api/openapi.yaml.
//
//go:embed openapi.yaml
var Document []byte
