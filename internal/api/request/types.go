package request

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	Name     string `json:"name,omitempty"`
	IsPublic *bool  `json:"is_public,omitempty"`
}

// Public returns the requested visibility, defaulting to public
func (r CreateRoomRequest) Public() bool {
	return r.IsPublic == nil || *r.IsPublic
}
