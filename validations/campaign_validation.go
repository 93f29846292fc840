package validations

import (
	"context"

	domainCampaign "github.com/kairosocial/kairo/domains/campaign"
	pkgError "github.com/kairosocial/kairo/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateCreateCampaign(ctx context.Context, request domainCampaign.CreateCampaignRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.AccountID, validation.Required),
		validation.Field(&request.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&request.StartDate, validation.Required),
		validation.Field(&request.EndDate, validation.Required),
		validation.Field(&request.PostsPerDay, validation.Min(0), validation.Max(25)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateAddMember(ctx context.Context, request domainCampaign.Member) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.PostID, validation.Required),
		validation.Field(&request.Role, validation.Required, validation.In(
			domainCampaign.RoleIntro,
			domainCampaign.RoleContent,
			domainCampaign.RolePromotion,
			domainCampaign.RoleConclusion,
		)),
		validation.Field(&request.Position, validation.Min(0)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
