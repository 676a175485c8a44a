package web

import (
	"context"
	"encoding/json"
	"net/http"
)

// Respond marshals val as JSON and writes it to the response with
// statusCode, recording the status on the request's Values for the
// logging middleware to report.
func Respond(ctx context.Context, w http.ResponseWriter, val any, statusCode int) error {
	v, err := GetValues(ctx)
	if err != nil {
		return err
	}
	v.StatusCode = statusCode

	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return nil
	}

	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_, err = w.Write(data)
	return err
}
