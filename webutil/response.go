package webutil

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
)

// maxJSONBodyBytes bounds request bodies decoded by DecodeJSON.
const maxJSONBodyBytes = 1 << 20

func RespondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
	RespondWithJSON(w, code, map[string]string{"error": message})
}

func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: Failed to marshal JSON response: %v", err)
		w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	if w.Header().Get(HeaderContentType) == "" {
		w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
	}
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

// DecodeJSON strictly decodes a JSON request body into v. Unknown fields and
// trailing data are rejected as bad requests.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return ErrBadRequest("Invalid request payload: " + err.Error())
	}
	if decoder.More() {
		return ErrBadRequest("Invalid request payload: unexpected data after JSON object")
	}
	return nil
}

// trackingWriter records whether a status line has been written.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackingWriter) WriteHeader(code int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}

// HasResponseWriterSentHeader reports whether a response has been started on
// w. Writers not created by MakeHandler are assumed to be untouched.
func HasResponseWriterSentHeader(w http.ResponseWriter) bool {
	if t, ok := w.(*trackingWriter); ok {
		return t.wroteHeader
	}
	return false
}

