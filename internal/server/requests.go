package server

type createInvitationRequest struct {
	UserID         string `json:"user_id" binding:"required,uuid"`
	OrganizationID string `json:"organization_id" binding:"required,uuid"`
	Message        string `json:"invitation_message" binding:"required,max=2000"`
}

type createUserRequest struct {
	Email    string `json:"email" binding:"required,email,max=320"`
	FullName string `json:"full_name" binding:"required,max=200"`
	Role     string `json:"role" binding:"omitempty,max=32"`
}

type createOrganizationRequest struct {
	Name           string `json:"name" binding:"required,max=200"`
	RegistryNumber string `json:"registry_number" binding:"required,max=64"`
	ContactEmail   string `json:"contact_email" binding:"omitempty,email,max=320"`
	CompanySize    int    `json:"company_size" binding:"gte=0"`
	YearFounded    int    `json:"year_founded" binding:"gte=0"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type idsResponse struct {
	Data []string `json:"data"`
}
