package chat

import (
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
)

// Chat is a conversation owned by one tenant.
type Chat struct {
	ID           string
	TenantID     string
	OwnerID      string
	Title        string
	SystemPrompt string
	Settings     Settings
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Settings carries per-chat behavior toggles.
type Settings struct {
	AllowMultiUser       bool
	MaxMembers           int
	AllowPrivateMessages bool
	DefaultVisibility    Visibility
}

// MemberRole is a member's standing within one chat.
type MemberRole string

const (
	MemberOwner   MemberRole = "owner"
	MemberRegular MemberRole = "member"
	MemberViewer  MemberRole = "viewer"
)

// Member is a user's membership record in a chat.
type Member struct {
	ChatID      string
	UserID      string
	Role        MemberRole
	Permissions MemberPermissions
	JoinedAt    time.Time
}

// MemberPermissions are per-member capability flags. Nil pointers fall
// back to the member's role defaults.
type MemberPermissions struct {
	CanSendMessages        *bool
	CanSendPrivateMessages *bool
	CanInviteMembers       *bool
	CanRemoveMembers       *bool
	CanChangeSettings      *bool
	CanApproveTools        *bool
	CanDeleteMessages      *bool
}

// DefaultPermissions returns the capability set a role grants when no
// per-member override exists.
func DefaultPermissions(role MemberRole) MemberPermissions {
	switch role {
	case MemberOwner:
		return allPermissions(true)
	case MemberRegular:
		send := true
		off := false
		return MemberPermissions{
			CanSendMessages:        &send,
			CanSendPrivateMessages: &send,
			CanInviteMembers:       &off,
			CanRemoveMembers:       &off,
			CanChangeSettings:      &off,
			CanApproveTools:        &off,
			CanDeleteMessages:      &off,
		}
	case MemberViewer:
		return allPermissions(false)
	default:
		return MemberPermissions{}
	}
}

func allPermissions(v bool) MemberPermissions {
	return MemberPermissions{
		CanSendMessages:        &v,
		CanSendPrivateMessages: &v,
		CanInviteMembers:       &v,
		CanRemoveMembers:       &v,
		CanChangeSettings:      &v,
		CanApproveTools:        &v,
		CanDeleteMessages:      &v,
	}
}

// IsTenantOwner reports whether the identifier is the synthetic
// tenant-owner principal (tenant-level credentials).
func IsTenantOwner(userID, tenantID string) bool {
	return userID != "" && userID == "tenant_"+tenantID
}

// IsMember reports whether the user appears in the membership list.
func IsMember(members []Member, userID string) bool {
	return findMember(members, userID) != nil
}

func findMember(members []Member, userID string) *Member {
	for i := range members {
		if members[i].UserID == userID {
			return &members[i]
		}
	}
	return nil
}

// effectiveUserID resolves tenant-level callers to the synthetic
// tenant-owner principal.
func effectiveUserID(ctx auth.Context) string {
	if ctx.UserID != "" {
		return ctx.UserID
	}
	return "tenant_" + ctx.TenantID
}

// tenantOwnerOverride grants every permission to the tenant owner when
// it also owns the chat.
func tenantOwnerOverride(c Chat, ctx auth.Context) bool {
	return IsTenantOwner(ctx.UserID, ctx.TenantID) && c.OwnerID == effectiveUserID(ctx)
}

// CanSendMessages reports whether the caller may post to the chat.
func CanSendMessages(c Chat, members []Member, ctx auth.Context) bool {
	if tenantOwnerOverride(c, ctx) {
		return true
	}
	if ctx.UserID == "" {
		return false
	}
	m := findMember(members, ctx.UserID)
	if m == nil {
		return false
	}
	return permOrDefault(m.Permissions.CanSendMessages, m.Role, func(p MemberPermissions) *bool { return p.CanSendMessages })
}

// CanSendPrivateMessages reports whether the caller may post private
// messages, honoring the chat-level toggle.
func CanSendPrivateMessages(c Chat, members []Member, ctx auth.Context) bool {
	if tenantOwnerOverride(c, ctx) {
		return true
	}
	if ctx.UserID == "" || !c.Settings.AllowPrivateMessages {
		return false
	}
	m := findMember(members, ctx.UserID)
	if m == nil {
		return false
	}
	return permOrDefault(m.Permissions.CanSendPrivateMessages, m.Role, func(p MemberPermissions) *bool { return p.CanSendPrivateMessages })
}

// CanInviteMembers reports whether the caller may add members.
func CanInviteMembers(c Chat, members []Member, ctx auth.Context) bool {
	return ownerOrPermission(c, members, ctx, func(p MemberPermissions) *bool { return p.CanInviteMembers })
}

// CanApproveTools reports whether the caller may approve tool calls.
func CanApproveTools(c Chat, members []Member, ctx auth.Context) bool {
	return ownerOrPermission(c, members, ctx, func(p MemberPermissions) *bool { return p.CanApproveTools })
}

// CanDeleteChat reports whether the caller may delete the chat.
func CanDeleteChat(c Chat, members []Member, ctx auth.Context) bool {
	return ownerOrPermission(c, members, ctx, func(p MemberPermissions) *bool { return p.CanRemoveMembers })
}

// CanViewChat reports whether the caller may see the chat at all.
func CanViewChat(c Chat, members []Member, ctx auth.Context) bool {
	if tenantOwnerOverride(c, ctx) {
		return true
	}
	if ctx.UserID == "" {
		return false
	}
	return IsMember(members, ctx.UserID)
}

func ownerOrPermission(c Chat, members []Member, ctx auth.Context, pick func(MemberPermissions) *bool) bool {
	if tenantOwnerOverride(c, ctx) {
		return true
	}
	if ctx.UserID == "" {
		return false
	}
	m := findMember(members, ctx.UserID)
	if m == nil {
		return false
	}
	if m.Role == MemberOwner {
		return true
	}
	return permOrDefault(pick(m.Permissions), m.Role, pick)
}

func permOrDefault(explicit *bool, role MemberRole, pick func(MemberPermissions) *bool) bool {
	if explicit != nil {
		return *explicit
	}
	if def := pick(DefaultPermissions(role)); def != nil {
		return *def
	}
	return false
}
