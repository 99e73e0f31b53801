package docs

import (
	"encoding/json"
	"testing"

	"github.com/swaggo/swag"
)

func TestRegisteredDocIsValidJSON(t *testing.T) {
	doc, err := swag.ReadDoc()
	if err != nil {
		t.Fatalf("ReadDoc: %v", err)
	}
	var parsed struct {
		BasePath string                     `json:"basePath"`
		Paths    map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("doc is not valid JSON: %v", err)
	}
	if parsed.BasePath != "/api/v1" {
		t.Fatalf("basePath = %q", parsed.BasePath)
	}
	for _, path := range []string{"/healthz", "/status", "/scans", "/bans", "/exemptions"} {
		if _, ok := parsed.Paths[path]; !ok {
			t.Errorf("path %s not documented", path)
		}
	}
}
