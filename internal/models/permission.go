package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Permission is a single admin right in a group or channel.
type Permission uint8

const (
	PermChangeInfo Permission = 1 << iota
	PermDeleteMessages
	PermInviteUsers
	PermPinMessages
	PermManageMembers
)

var permissionNames = []struct {
	perm Permission
	name string
}{
	{PermChangeInfo, "change_info"},
	{PermDeleteMessages, "delete_messages"},
	{PermInviteUsers, "invite_users"},
	{PermPinMessages, "pin_messages"},
	{PermManageMembers, "manage_members"},
}

func (p Permission) String() string {
	for _, entry := range permissionNames {
		if entry.perm == p {
			return entry.name
		}
	}
	return "unknown"
}

// PermissionSet is a bitset of Permission values.
type PermissionSet uint8

const (
	NoPermissions  PermissionSet = 0
	AllPermissions               = PermissionSet(PermChangeInfo | PermDeleteMessages | PermInviteUsers | PermPinMessages | PermManageMembers)
)

func NewPermissionSet(perms ...Permission) PermissionSet {
	var set PermissionSet
	for _, p := range perms {
		set |= PermissionSet(p)
	}
	return set & AllPermissions
}

func (s PermissionSet) Has(p Permission) bool { return s&PermissionSet(p) != 0 }
func (s PermissionSet) Empty() bool           { return s&AllPermissions == 0 }

func (s PermissionSet) CanChangeInfo() bool     { return s.Has(PermChangeInfo) }
func (s PermissionSet) CanDeleteMessages() bool { return s.Has(PermDeleteMessages) }
func (s PermissionSet) CanInviteUsers() bool    { return s.Has(PermInviteUsers) }
func (s PermissionSet) CanPinMessages() bool    { return s.Has(PermPinMessages) }
func (s PermissionSet) CanManageMembers() bool  { return s.Has(PermManageMembers) }

// List returns the set's permissions in declaration order.
func (s PermissionSet) List() []Permission {
	var out []Permission
	for _, entry := range permissionNames {
		if s.Has(entry.perm) {
			out = append(out, entry.perm)
		}
	}
	return out
}

func (s PermissionSet) String() string {
	names := make([]string, 0, len(permissionNames))
	for _, p := range s.List() {
		names = append(names, p.String())
	}
	return strings.Join(names, ",")
}

// Flags expands the set into the five named flags used on the wire and in storage.
func (s PermissionSet) Flags() AdminPermissions {
	return AdminPermissions{
		CanChangeInfo:     s.CanChangeInfo(),
		CanDeleteMessages: s.CanDeleteMessages(),
		CanInviteUsers:    s.CanInviteUsers(),
		CanPinMessages:    s.CanPinMessages(),
		CanManageMembers:  s.CanManageMembers(),
	}
}

// AdminPermissions is the flag form of a PermissionSet.
type AdminPermissions struct {
	CanChangeInfo     bool `db:"can_change_info" json:"can_change_info"`
	CanDeleteMessages bool `db:"can_delete_messages" json:"can_delete_messages"`
	CanInviteUsers    bool `db:"can_invite_users" json:"can_invite_users"`
	CanPinMessages    bool `db:"can_pin_messages" json:"can_pin_messages"`
	CanManageMembers  bool `db:"can_manage_members" json:"can_manage_members"`
}

func (a AdminPermissions) Set() PermissionSet {
	var set PermissionSet
	if a.CanChangeInfo {
		set |= PermissionSet(PermChangeInfo)
	}
	if a.CanDeleteMessages {
		set |= PermissionSet(PermDeleteMessages)
	}
	if a.CanInviteUsers {
		set |= PermissionSet(PermInviteUsers)
	}
	if a.CanPinMessages {
		set |= PermissionSet(PermPinMessages)
	}
	if a.CanManageMembers {
		set |= PermissionSet(PermManageMembers)
	}
	return set
}

// AdminGrant is an explicit permission set for a non-owner participant.
type AdminGrant struct {
	ChatID    uuid.UUID     `json:"chat_id"`
	UserID    uuid.UUID     `json:"user_id"`
	Perms     PermissionSet `json:"-"`
	GrantedBy uuid.UUID     `json:"granted_by"`
	GrantedAt time.Time     `json:"granted_at"`
}
