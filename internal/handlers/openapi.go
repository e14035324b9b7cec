package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/quickfix/quickfix-api/internal/apperr"
	"gopkg.in/yaml.v3"
)

var errMalformedDocument = errors.New("openapi document is malformed")

// OpenAPIHandler serves the API description from a YAML file on disk. The
// file is read per request so a redeployed document is picked up without a
// restart.
type OpenAPIHandler struct {
	path    string
	baseDir string
}

func NewOpenAPIHandler(openAPIPath string) *OpenAPIHandler {
	absPath, _ := filepath.Abs(openAPIPath)
	return &OpenAPIHandler{path: absPath, baseDir: filepath.Dir(absPath)}
}

// RegisterRoutes registers the document routes under the /api/v1 router
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/openapi.yaml", h.ServeYAML).Methods(http.MethodGet)
	r.HandleFunc("/openapi.json", h.ServeJSON).Methods(http.MethodGet)
}

// load reads the document, refusing paths outside its directory and files
// that are not OpenAPI 3 descriptions.
func (h *OpenAPIHandler) load() ([]byte, map[string]any, error) {
	rel, err := filepath.Rel(h.baseDir, filepath.Clean(h.path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, nil, os.ErrPermission
	}
	raw, err := os.ReadFile(h.path)
	if err != nil {
		return nil, nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errMalformedDocument, err)
	}
	if version, _ := doc["openapi"].(string); !strings.HasPrefix(version, "3.") {
		return nil, nil, fmt.Errorf("%w: unsupported openapi version %q", errMalformedDocument, version)
	}
	return raw, doc, nil
}

func (h *OpenAPIHandler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, errMalformedDocument) {
		respondJSONError(w, http.StatusInternalServerError, string(apperr.Internal), "OpenAPI document is malformed")
		return
	}
	respondJSONError(w, http.StatusNotFound, string(apperr.NotFound), "OpenAPI document not found")
}

// ServeYAML serves the document as stored
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	raw, _, err := h.load()
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(raw)
}

// ServeJSON serves the document converted to JSON
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	_, doc, err := h.load()
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}
