// Package authz defines team roles and the fixed role to permission matrix.
package authz

import (
	"fmt"
	"strings"
)

// Role is a member's role within a team.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleViewer  Role = "viewer"
)

// Permission is a capability gated by role.
type Permission string

const (
	CreateTeam   Permission = "create_team"
	DeleteTeam   Permission = "delete_team"
	EditTeam     Permission = "edit_team"
	InviteMember Permission = "invite_member"
	RemoveMember Permission = "remove_member"
	ChangeRoles  Permission = "change_roles"
	CreateTask   Permission = "create_task"
	EditTask     Permission = "edit_task"
	EditOwnTask  Permission = "edit_own_task"
	DeleteTask   Permission = "delete_task"
	AssignTask   Permission = "assign_task"
	ViewAll      Permission = "view_all"
)

var allPermissions = []Permission{
	CreateTeam, DeleteTeam, EditTeam, InviteMember, RemoveMember, ChangeRoles,
	CreateTask, EditTask, EditOwnTask, DeleteTask, AssignTask, ViewAll,
}

var matrix = map[Role]map[Permission]struct{}{
	RoleOwner:   set(allPermissions...),
	RoleAdmin:   set(CreateTeam, EditTeam, InviteMember, RemoveMember, ChangeRoles, CreateTask, EditTask, DeleteTask, AssignTask, ViewAll),
	RoleManager: set(EditTeam, InviteMember, CreateTask, EditTask, DeleteTask, AssignTask, ViewAll),
	RoleMember:  set(CreateTask, EditOwnTask, ViewAll),
	RoleViewer:  set(ViewAll),
}

func set(perms ...Permission) map[Permission]struct{} {
	out := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		out[p] = struct{}{}
	}
	return out
}

// HasPermission reports whether role grants perm. Unknown roles grant nothing.
func HasPermission(role Role, perm Permission) bool {
	_, ok := matrix[role][perm]
	return ok
}

// Permissions lists the capabilities of a role in a stable order.
func Permissions(role Role) []Permission {
	var out []Permission
	for _, p := range allPermissions {
		if HasPermission(role, p) {
			out = append(out, p)
		}
	}
	return out
}

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := matrix[role]; !ok {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Assignable reports whether a role may be granted through membership
// changes. Ownership is fixed at team creation.
func Assignable(role Role) bool {
	_, known := matrix[role]
	return known && role != RoleOwner
}
