package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"paperchat/internal/faults"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses the JSON body into dst and checks its validate tags.
// Both failure modes surface as input faults, so handlers map them to 400.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return faults.Input("invalid JSON body: " + err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return faults.Input("invalid request: " + err.Error())
	}
	return nil
}
