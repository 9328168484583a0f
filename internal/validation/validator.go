package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with the struct-level rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// guests identify themselves by cart and e-mail
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if !req.Guest {
		return
	}
	if req.CartID == "" {
		sl.ReportError(req.CartID, "cart_id", "CartID", "required_for_guest", "")
	}
	if req.CustomerEmail == "" {
		sl.ReportError(req.CustomerEmail, "customer_email", "CustomerEmail", "required_for_guest", "")
	}
}
