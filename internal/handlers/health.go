package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eduaventuras/apiserver/internal/auth"
)

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RouteDoc describes one access rule.
type RouteDoc struct {
	Method  string   `json:"method"`
	Pattern string   `json:"pattern"`
	Access  string   `json:"access"`
	Roles   []string `json:"roles,omitempty"`
}

// DocsRouter publishes the route table the gate enforces.
func DocsRouter(r chi.Router, classifier *auth.Classifier) {
	r.Get("/routes", func(w http.ResponseWriter, _ *http.Request) {
		rules := classifier.Rules()
		docs := make([]RouteDoc, 0, len(rules))
		for _, rule := range rules {
			doc := RouteDoc{Method: rule.Method, Pattern: rule.Pattern, Access: rule.Access.String()}
			if doc.Method == "" {
				doc.Method = "*"
			}
			for _, role := range rule.Roles {
				doc.Roles = append(doc.Roles, role.String())
			}
			docs = append(docs, doc)
		}
		writeJSON(w, http.StatusOK, docs)
	})
}
