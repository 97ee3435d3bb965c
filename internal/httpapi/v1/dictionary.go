package v1

import (
	"net/http"

	"github.com/tinoosan/fintrack/internal/dictionary"
)

// GET /v1/dictionary/kinds
func (s *Server) getKindsDictionary(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Items []dictionary.KindDef `json:"items"`
	}{Items: dictionary.Kinds()}
	toJSON(w, http.StatusOK, out)
}
