package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

var (
	validate  = validator.New()
	translate ut.Translator
)

func init() {
	uni := ut.New(en.New())
	translate, _ = uni.GetTranslator("en")
}

// Param returns the value of a named path parameter, as bound by
// httptreemux's route registration, or "" if the request was not routed
// through this app's mux.
func Param(r *http.Request, key string) string {
	m := httptreemux.ContextParams(r.Context())
	return m[key]
}

// Decode unmarshals the request body into val and runs struct validation
// tags against it, returning a field-by-field summary of any violation.
func Decode(r *http.Request, val any) error {
	if err := json.NewDecoder(r.Body).Decode(val); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if err := validate.Struct(val); err != nil {
		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		var fields []string
		for _, verror := range verrors {
			fields = append(fields, fmt.Sprintf("%s:%s", verror.Field(), verror.Translate(translate)))
		}

		return fmt.Errorf("field validation error [%s]", strings.Join(fields, ","))
	}

	return nil
}
