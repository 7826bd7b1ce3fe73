package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files. The body itself is already capped by limitBody.
const multipartMemory = 8 << 20

// errorBody is the JSON error envelope used for every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON writes v as the response with the given status. Encoding
// failures can only be logged; the header is already on the wire.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response body", "error", err)
	}
}

// writeError writes the standard error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeAudio writes an encoded audio blob with its content type and length.
func writeAudio(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		slog.Debug("write audio response", "error", err)
	}
}

// decodeJSON strictly decodes the request body into v. Unknown fields are
// rejected so client typos surface as 400s instead of silently dropped
// options.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// readFormFile returns the contents and original filename of the named
// multipart part.
func readFormFile(r *http.Request, field string) ([]byte, string, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read %q part: %w", field, err)
	}
	return data, hdr.Filename, nil
}

// parseMultipart parses the request's multipart form, translating the body
// size cap into a 413. Reports whether the handler should continue.
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	err := r.ParseMultipartForm(multipartMemory)
	if err == nil {
		return true
	}
	if isBodyTooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
	} else {
		writeError(w, http.StatusBadRequest, "parse multipart form: "+err.Error())
	}
	return false
}

// isBodyTooLarge reports whether err came from the limitBody cap.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// formBool reads the named form field as a bool; absent or malformed
// values are false.
func formBool(r *http.Request, field string) bool {
	v, _ := strconv.ParseBool(r.FormValue(field))
	return v
}
