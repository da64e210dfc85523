package handlers

import (
	"github.com/dimitrije/starter-api/internal/models"
	"github.com/dimitrije/starter-api/pkg/dto"
)

func identityResponse(a *models.Account) dto.IdentityResponse {
	resp := dto.IdentityResponse{
		SubjectID:     a.SubjectID,
		Email:         a.Email,
		EmailVerified: a.EmailVerified,
		Name:          a.Name,
		Provider:      a.Provider,
	}
	if a.Picture != nil {
		resp.Picture = *a.Picture
	}
	return resp
}

func recordResponse(r *models.UserRecord) *dto.RecordResponse {
	if r == nil {
		return nil
	}
	return &dto.RecordResponse{
		SubjectID:          r.SubjectID,
		Fields:             r.Fields,
		PriceID:            r.PriceID,
		SubscriptionStatus: r.SubscriptionStatus,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}
