package helpers

import (
	"encoding/json"
	"html"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/ninja-software/terror/v2"
)

// EncodeJSON will encode json to response writer and return status ok.
func EncodeJSON(w http.ResponseWriter, result interface{}) (int, error) {
	err := json.NewEncoder(w).Encode(result)
	if err != nil {
		return http.StatusInternalServerError, terror.Error(err, "")
	}
	return http.StatusOK, nil
}

// SanitiseString strips markup and surrounding whitespace from user input.
// Entities escaped by the policy are decoded again so "&" stays "&".
func SanitiseString(s string, sp *bluemonday.Policy) string {
	return strings.TrimSpace(html.UnescapeString(sp.Sanitize(s)))
}
