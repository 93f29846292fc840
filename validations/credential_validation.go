package validations

import (
	"context"

	domainCredential "github.com/kairosocial/kairo/domains/credential"
	pkgError "github.com/kairosocial/kairo/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateConnect(ctx context.Context, request domainCredential.ConnectRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.AccountID, validation.Required),
		validation.Field(&request.AuthCode, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
