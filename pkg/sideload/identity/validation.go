package identity

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/prostore-ios/sideloader/pkg/sideload/model"
)

func ValidateVerifyRequest(req VerifyRequest) error {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Identity, validation.Required),
		validation.Field(&req.Profile, validation.Required),
	); err != nil {
		return fmt.Errorf("%s%w", err.Error(), model.ErrInvalidParameter)
	}

	return nil
}
