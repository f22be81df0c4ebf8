package dto

import "github.com/hugh/cloudguard/internal/database/models"

// SessionRequest hands the identity provider's access token to the server
// so it can be stored as an HttpOnly cookie.
type SessionRequest struct {
	AccessToken string `json:"access_token"`
}

func (r SessionRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.AccessToken == "" {
		errors["access_token"] = "Access token is required"
	}

	return errors
}

type UserDTO struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
	OrgName        string `json:"org_name,omitempty"`
}

func NewUserDTO(u *models.User) UserDTO {
	dto := UserDTO{
		ID:             u.ID.String(),
		Email:          u.Email,
		FullName:       u.FullName,
		Role:           string(u.Role),
		OrganizationID: u.OrganizationID.String(),
	}
	if u.Organization != nil {
		dto.OrgName = u.Organization.Name
	}
	return dto
}
