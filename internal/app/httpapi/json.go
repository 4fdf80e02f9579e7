package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders err as the access API's {error:{type, description}}
// envelope. A *sandboxError carries its own status and type; any other
// error is wrapped as an InternalServerError, matching the "bank's fault"
// default for unexpected failures.
func writeError(w http.ResponseWriter, err error) {
	var sErr *sandboxError
	if !errors.As(err, &sErr) {
		sErr = errInternal(err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(sErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"type":        sErr.Type,
			"description": sErr.Message,
		},
	})
}
