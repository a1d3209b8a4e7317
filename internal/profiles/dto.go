package profiles

import "time"

type UpdateProfileRequest struct {
	DisplayName  string   `json:"display_name" binding:"required"`
	Role         string   `json:"role" binding:"required"`
	Department   string   `json:"department"`
	AssignedLabs []string `json:"assigned_labs"`
}

type ProfileResponse struct {
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	Department   string    `json:"department,omitempty"`
	AssignedLabs []string  `json:"assigned_labs"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toResponse(p *Profile) ProfileResponse {
	labs := p.AssignedLabs
	if labs == nil {
		labs = []string{}
	}
	return ProfileResponse{
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		Role:         p.Role,
		Department:   p.Department,
		AssignedLabs: labs,
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
