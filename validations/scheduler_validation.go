package validations

import (
	"context"

	domainScheduler "github.com/kairosocial/kairo/domains/scheduler"
	pkgError "github.com/kairosocial/kairo/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateSchedulePost(ctx context.Context, request domainScheduler.SchedulePostRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.PostID, validation.Required),
		validation.Field(&request.TargetTime, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
