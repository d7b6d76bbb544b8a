package dto

// RegisterCitizenRequest creates a citizen account. Roles are never
// caller-supplied here; staff accounts go through the admin endpoint.
type RegisterCitizenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8"`
}

// CreateStaffRequest creates a staff account with its department coverage.
type CreateStaffRequest struct {
	Email       string   `json:"email" validate:"required,email"`
	FullName    string   `json:"full_name" validate:"required,max=120"`
	Password    string   `json:"password" validate:"required,min=8"`
	Role        string   `json:"role" validate:"required,oneof=field_staff supervisor commissioner employee admin"`
	Departments []string `json:"departments" validate:"required,min=1,dive,required"`
}

// UpdateProfileRequest changes the caller's own profile.
type UpdateProfileRequest struct {
	FullName string `json:"full_name" validate:"required,max=120"`
}

// StaffQuery filters the admin staff listing.
type StaffQuery struct {
	Role     string `form:"role"`
	Active   *bool  `form:"active"`
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
}
