package validate

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
)

var validate *validator.Validate

var translator ut.Translator

func init() {

	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	en_translations.RegisterDefaultTranslations(validate, translator)
}

// Check validates val and reports every failing field, keyed by its json
// path without the top level struct name.
func Check(val any) error {
	if err := validate.Struct(val); err != nil {

		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		if len(verrors) < 1 {
			return nil
		}

		fields := make(map[string]string, len(verrors))
		for _, fe := range verrors {
			ns := fe.Namespace()
			if i := strings.IndexByte(ns, '.'); i >= 0 {
				ns = ns[i+1:]
			}
			fields[ns] = fe.Translate(translator)
		}

		return failure.New(failure.Validation, "invalid_input", verrors[0].Translate(translator)).WithFields(fields)
	}

	return nil
}
