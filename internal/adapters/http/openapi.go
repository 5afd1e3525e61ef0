package http

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML embed.FS

var (
	openAPIJSON     []byte
	openAPIJSONOnce sync.Once
	openAPIJSONErr  error
)

// getOpenAPIJSON returns the OpenAPI document as JSON, converted from the
// embedded YAML on first access.
func getOpenAPIJSON() ([]byte, error) {
	openAPIJSONOnce.Do(func() {
		openAPIJSON, openAPIJSONErr = convertOpenAPIToJSON()
	})
	return openAPIJSON, openAPIJSONErr
}

func convertOpenAPIToJSON() ([]byte, error) {
	yamlData, err := openAPIYAML.ReadFile("openapi.yaml")
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(yamlData, &doc); err != nil {
		return nil, fmt.Errorf("parsing openapi.yaml: %w", err)
	}

	return json.MarshalIndent(stringKeys(doc), "", "  ")
}

// stringKeys rewrites nested YAML maps to string-keyed maps so that
// encoding/json accepts them. Non-string keys such as response codes are
// formatted.
func stringKeys(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		for key, value := range v {
			v[key] = stringKeys(value)
		}
		return v
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[fmt.Sprint(key)] = stringKeys(value)
		}
		return result
	case []interface{}:
		for i, value := range v {
			v[i] = stringKeys(value)
		}
		return v
	default:
		return v
	}
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>mapcore API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = () => { SwaggerUIBundle({ url: '/openapi.json', dom_id: '#swagger-ui' }); };
  </script>
</body>
</html>`

// handleSwaggerUI serves the interactive API documentation.
func (s *Server) handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(swaggerUIHTML))
}
