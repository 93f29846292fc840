package validations

import (
	"context"

	domainPost "github.com/kairosocial/kairo/domains/post"
	pkgError "github.com/kairosocial/kairo/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

func ValidateCreatePost(ctx context.Context, request domainPost.CreatePostRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.AccountID, validation.Required),
		validation.Field(&request.MediaURLs, validation.Required, validation.Each(is.URL)),
		validation.Field(&request.PostType, validation.Required, validation.In(
			domainPost.TypePhoto,
			domainPost.TypeVideo,
			domainPost.TypeCarousel,
			domainPost.TypeReel,
		)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
