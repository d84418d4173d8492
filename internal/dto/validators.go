package dto

import (
	"github.com/apgms/apgms/internal/core/domain"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the abn and taxtype tags.
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("abn", func(fl validator.FieldLevel) bool {
		return domain.ValidABN(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("taxtype", func(fl validator.FieldLevel) bool {
		return domain.TaxType(fl.Field().String()).Valid()
	})
}
