package cart

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/hanifauzan/greenmart/internal/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func decimalValue(v reflect.Value) interface{} {
	d, ok := v.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	f, _ := d.Float64()
	return f
}

func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	})
	return validate
}

// ValidateLineItem checks the required fields, the positive price, and the
// minimum-order-quantity floor. It reports every failing field at once.
func ValidateLineItem(item LineItem) error {
	fields := []string{}

	err := Validator().Struct(item)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if !stderrors.As(err, &validationErrors) {
			return fmt.Errorf("failed validating cart item with error=%w", err)
		}
		for _, fieldError := range validationErrors {
			fields = append(fields, fieldError.Field())
		}
	}

	if item.MinimumOrderQuantity > 0 && item.Quantity < item.MinimumOrderQuantity {
		fields = append(fields, "Quantity")
	}

	if len(fields) > 0 {
		return &errors.ValidationError{Fields: fields}
	}
	return nil
}

// ValidateItems validates every item; one invalid item fails the whole list.
func ValidateItems(items []LineItem) error {
	for _, item := range items {
		if err := ValidateLineItem(item); err != nil {
			return fmt.Errorf(
				"failed validating productId=%s with error=%w",
				item.ProductId,
				err,
			)
		}
	}
	return nil
}
