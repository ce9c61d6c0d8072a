package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxBodyBytes caps JSON request bodies; file content rides inside them.
const maxBodyBytes = 16 * 1024 * 1024

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
