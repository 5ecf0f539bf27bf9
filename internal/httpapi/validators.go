package httpapi

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Dilip0552/PresenSync/internal/admission"
)

// RegisterValidators installs custom binding validations on gin's validator
// engine. Call once before building the router.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	// isodate accepts the same timestamp forms the admission pipeline does,
	// so a session cannot be created with a start time admission would reject.
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := admission.ParseTimestamp(fl.Field().String())
		return err == nil
	})
}
