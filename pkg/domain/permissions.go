package domain

// Role classifies a collaborator for authorization purposes.
type Role string

// Recognised collaborator roles.
const (
	// RoleAdmin can do everything, including archiving.
	RoleAdmin Role = "admin"
	// RoleManager can create experiments and edit the ones they own.
	RoleManager Role = "manager"
	// RoleViewer has read-only access.
	RoleViewer Role = "viewer"
)

// Capabilities is the derived capability set obtained from a role. The
// mapping is pure and deterministic; authorization never consults anything
// beyond the actor role, the actor id, and the experiment owner id.
type Capabilities struct {
	CanCreate          bool `json:"can_create"`
	CanEditAll         bool `json:"can_edit_all"`
	CanEditOwn         bool `json:"can_edit_own"`
	CanArchive         bool `json:"can_archive"`
	CanManageTemplates bool `json:"can_manage_templates"`
}

// RoleCapabilities maps a role to its capability set. Unknown roles resolve
// to no capabilities.
func RoleCapabilities(role Role) Capabilities {
	switch role {
	case RoleAdmin:
		return Capabilities{
			CanCreate:          true,
			CanEditAll:         true,
			CanEditOwn:         true,
			CanArchive:         true,
			CanManageTemplates: true,
		}
	case RoleManager:
		return Capabilities{
			CanCreate:          true,
			CanEditOwn:         true,
			CanManageTemplates: true,
		}
	default:
		return Capabilities{}
	}
}

// CanEdit reports whether the acting collaborator may mutate an experiment
// owned by ownerID. Edit covers every lifecycle transition as well.
func (c Capabilities) CanEdit(actorID, ownerID string) bool {
	if c.CanEditAll {
		return true
	}
	return c.CanEditOwn && actorID != "" && actorID == ownerID
}

// Capabilities resolves the actor's capability set.
func (a Actor) Capabilities() Capabilities {
	return RoleCapabilities(a.Role)
}
