// Package httperr writes error responses in the {statusCode, error, message}
// shape shared by every endpoint.
package httperr

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Write sends status with a JSON error body. An empty message defaults to
// the status text.
func Write(w http.ResponseWriter, status int, message string) {
	text := http.StatusText(status)
	if message == "" {
		message = text
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("statusCode", func(e *jx.Encoder) { e.Int(status) })
		e.Field("error", func(e *jx.Encoder) { e.Str(text) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
