// Package api embeds the HTTP API description served and enforced by the
// server.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPISpec []byte
