package plan

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/skoolpay/skoolpay/core"
)

var (
	docTypeTag  = "doc_type"
	docTypeText = "invalid document type"

	methodTag  = "payment_method"
	methodText = "invalid payment method"
)

// InitValidators registers the plan package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(docTypeTag, docTypeValidation)
	core.RegisterCustomTranslation(validate, translator, docTypeTag, docTypeText)

	_ = validate.RegisterValidation(methodTag, methodValidation)
	core.RegisterCustomTranslation(validate, translator, methodTag, methodText)
}

// docTypeValidation checks that the provided type is one of AllDocumentTypes.
func docTypeValidation(fl validator.FieldLevel) bool {
	typ := fl.Field().String()
	for _, t := range AllDocumentTypes {
		if typ == t {
			return true
		}
	}
	return false
}

// methodValidation checks that the provided method is one of AllMethods.
func methodValidation(fl validator.FieldLevel) bool {
	method := fl.Field().String()
	for _, m := range AllMethods {
		if method == m {
			return true
		}
	}
	return false
}
