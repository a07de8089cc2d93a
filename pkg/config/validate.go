package config

import (
	"github.com/go-openapi/spec"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
	multierror "github.com/hashicorp/go-multierror"
)

// ValidateConfig checks a decoded config object against its schema and
// returns all violations at once.
func ValidateConfig(dataObj map[string]interface{}, s *spec.Schema, rootName string) error {
	if s == nil {
		return nil
	}

	validator := validate.NewSchemaValidator(s, nil, rootName, strfmt.Default)
	result := validator.Validate(dataObj)
	if result.IsValid() {
		return nil
	}

	var allErrs *multierror.Error
	for _, err := range result.Errors {
		allErrs = multierror.Append(allErrs, err)
	}
	return allErrs.ErrorOrNil()
}
