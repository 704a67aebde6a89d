package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
)

func testChat() Chat {
	return Chat{
		ID:       "c1",
		TenantID: "t1",
		OwnerID:  "owner",
		Settings: Settings{AllowPrivateMessages: true, MaxMembers: 10},
	}
}

func testMembers() []Member {
	return []Member{
		{ChatID: "c1", UserID: "owner", Role: MemberOwner},
		{ChatID: "c1", UserID: "m1", Role: MemberRegular},
		{ChatID: "c1", UserID: "v1", Role: MemberViewer},
	}
}

func TestCanSendMessagesByRole(t *testing.T) {
	c, members := testChat(), testMembers()

	assert.True(t, CanSendMessages(c, members, caller("owner")))
	assert.True(t, CanSendMessages(c, members, caller("m1")))
	assert.False(t, CanSendMessages(c, members, caller("v1")))
	assert.False(t, CanSendMessages(c, members, caller("stranger")))
}

func TestCanSendMessagesExplicitOverride(t *testing.T) {
	c := testChat()
	off := false
	members := []Member{{ChatID: "c1", UserID: "m1", Role: MemberRegular,
		Permissions: MemberPermissions{CanSendMessages: &off}}}

	assert.False(t, CanSendMessages(c, members, caller("m1")))
}

func TestCanSendPrivateMessagesHonorsChatToggle(t *testing.T) {
	c, members := testChat(), testMembers()
	assert.True(t, CanSendPrivateMessages(c, members, caller("m1")))

	c.Settings.AllowPrivateMessages = false
	assert.False(t, CanSendPrivateMessages(c, members, caller("m1")))
}

func TestOwnerImpliedPermissions(t *testing.T) {
	c, members := testChat(), testMembers()

	assert.True(t, CanInviteMembers(c, members, caller("owner")))
	assert.True(t, CanApproveTools(c, members, caller("owner")))
	assert.True(t, CanDeleteChat(c, members, caller("owner")))

	assert.False(t, CanInviteMembers(c, members, caller("m1")))
	assert.False(t, CanApproveTools(c, members, caller("m1")))
	assert.False(t, CanDeleteChat(c, members, caller("m1")))
}

func TestTenantOwnerOverride(t *testing.T) {
	c := testChat()
	c.OwnerID = "tenant_t1"
	tenantCtx := auth.NewContext("t1", "tenant_t1", nil, nil, "", "")

	// Tenant owner of its own chat needs no membership record.
	assert.True(t, CanSendMessages(c, nil, tenantCtx))
	assert.True(t, CanViewChat(c, nil, tenantCtx))
	assert.True(t, CanDeleteChat(c, nil, tenantCtx))

	// Tenant credentials from another tenant get nothing.
	other := auth.NewContext("t2", "tenant_t2", nil, nil, "", "")
	assert.False(t, CanViewChat(c, nil, other))
}

func TestCanViewChatRequiresMembership(t *testing.T) {
	c, members := testChat(), testMembers()

	assert.True(t, CanViewChat(c, members, caller("v1")))
	assert.False(t, CanViewChat(c, members, caller("stranger")))
	assert.False(t, CanViewChat(c, members, auth.NewContext("t1", "", nil, nil, "", "")))
}

func TestDefaultPermissions(t *testing.T) {
	owner := DefaultPermissions(MemberOwner)
	assert.True(t, *owner.CanSendMessages)
	assert.True(t, *owner.CanChangeSettings)

	member := DefaultPermissions(MemberRegular)
	assert.True(t, *member.CanSendMessages)
	assert.False(t, *member.CanInviteMembers)

	viewer := DefaultPermissions(MemberViewer)
	assert.False(t, *viewer.CanSendMessages)
}
