package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eduaventuras/apiserver/internal/i18n"
)

// I18nRouter serves the translation bundles.
func I18nRouter(r chi.Router, bundle *i18n.Bundle) {
	r.Get("/mensajes", func(w http.ResponseWriter, r *http.Request) {
		lang := requestLanguage(bundle, r)
		writeJSON(w, http.StatusOK, MessagesResponse{Language: lang, Messages: bundle.Messages(lang)})
	})
	r.Get("/idiomas-disponibles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, LanguagesResponse{Default: i18n.DefaultLanguage, Languages: bundle.Languages()})
	})
}

// MessagesResponse is the message bundle of one language.
type MessagesResponse struct {
	Language string            `json:"language"`
	Messages map[string]string `json:"messages"`
}

// LanguagesResponse lists the supported languages.
type LanguagesResponse struct {
	Default   string            `json:"default"`
	Languages map[string]string `json:"languages"`
}

// requestLanguage prefers the "lang" query parameter over Accept-Language.
func requestLanguage(bundle *i18n.Bundle, r *http.Request) string {
	return bundle.Match(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
}
