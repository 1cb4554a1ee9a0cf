package pipeline

import (
	"fmt"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/prostore-ios/sideloader/pkg/sideload/model"
)

func ValidateJobRequest(req JobRequest) error {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.SourceURL, validation.Required, is.URL),
		validation.Field(&req.Identity, validation.Required),
		validation.Field(&req.Profile, validation.Required),
	); err != nil {
		return fmt.Errorf("%s%w", err.Error(), model.ErrInvalidParameter)
	}

	return nil
}

func ValidateStageWeights(weights StageWeights) error {
	if err := validation.ValidateStruct(&weights,
		validation.Field(&weights.Download, validation.Min(0.0)),
		validation.Field(&weights.Sign, validation.Min(0.0)),
		validation.Field(&weights.Install, validation.Min(0.0)),
	); err != nil {
		return fmt.Errorf("%s%w", err.Error(), model.ErrInvalidParameter)
	}

	sum := weights.Download + weights.Sign + weights.Install
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("stage weights sum to %v, want 1%w", sum, model.ErrInvalidParameter)
	}

	return nil
}
