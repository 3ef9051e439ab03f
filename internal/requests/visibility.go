package requests

import "github.com/midrand-elite/meg-services/internal/models"

// Visible reports whether u may see r. Workers see the open pool plus their
// own jobs, clients see what they submitted, admins see everything.
func Visible(u *models.User, r *models.ServiceRequest) bool {
	if u == nil || r == nil {
		return false
	}
	switch u.Role {
	case models.RoleAdmin:
		return true
	case models.RoleWorker:
		return r.Status == models.StatusPending || r.AssignedTo(u.ID)
	default:
		return r.ClientID == u.ID
	}
}

func Filter(u *models.User, list []models.ServiceRequest) []models.ServiceRequest {
	out := make([]models.ServiceRequest, 0, len(list))
	for i := range list {
		if Visible(u, &list[i]) {
			out = append(out, list[i])
		}
	}
	return out
}
