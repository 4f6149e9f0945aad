package fetch

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// FieldError names an option that failed validation.
type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors lists every option that failed validation.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	msgs := make([]string, 0, len(fe))
	for _, f := range fe {
		msgs = append(msgs, f.Field+": "+f.Err)
	}
	return strings.Join(msgs, "; ")
}

type optionsValidator struct {
	v  *validator.Validate
	tr ut.Translator
}

var optionsChecker = sync.OnceValue(func() *optionsValidator {
	ov, err := newOptionsValidator()
	if err != nil {
		panic("fetch: " + err.Error())
	}
	return ov
})

func newOptionsValidator() (*optionsValidator, error) {
	tr, ok := ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		return nil, errors.New("no 'en' translator")
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := en_translations.RegisterDefaultTranslations(v, tr); err != nil {
		return nil, fmt.Errorf("registering translations: %w", err)
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("filename", isPlainFileName); err != nil {
		return nil, fmt.Errorf("registering filename validation: %w", err)
	}

	messages := map[string]string{
		"required": "{0} is required",
		"http_url": "{0} must be an absolute http or https URL",
		"filename": "{0} must be a plain file name",
	}
	for tag, msg := range messages {
		err := v.RegisterTranslation(tag, tr,
			func(ut ut.Translator) error { return ut.Add(tag, msg, true) },
			func(ut ut.Translator, fe validator.FieldError) string {
				s, err := ut.T(fe.Tag(), fe.Field())
				if err != nil {
					return fe.Error()
				}
				return s
			},
		)
		if err != nil {
			return nil, fmt.Errorf("registering %s translation: %w", tag, err)
		}
	}

	return &optionsValidator{v: v, tr: tr}, nil
}

// isPlainFileName rejects names that would escape the save directory.
func isPlainFileName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

// Validate checks o against the constraints declared on Options. Failures
// wrap ErrInvalidOptions and FieldErrors.
func Validate(o Options) error {
	ov := optionsChecker()

	err := ov.v.Struct(o)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	fields := make(FieldErrors, 0, len(verrs))
	for _, ve := range verrs {
		fields = append(fields, FieldError{Field: ve.Field(), Err: ve.Translate(ov.tr)})
	}

	return fmt.Errorf("%w: %w", ErrInvalidOptions, fields)
}
