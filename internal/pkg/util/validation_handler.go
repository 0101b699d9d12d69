package util

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrValidation 请求参数未通过校验
var ErrValidation = errors.New("参数错误")

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateDTO 只报告第一个失败字段
func ValidateDTO(dto any) error {
	if err := validate.Struct(dto); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			firstError := vErrs[0]
			return fmt.Errorf("%w: 字段 [%s] 校验失败，规则 [%s]",
				ErrValidation,
				firstError.Field(),
				firstError.Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
