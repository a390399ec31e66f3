// Package api defines the wire messages of kriskindle.v1.GroupService.
//
// Messages are plain structs encoded as JSON by Codec. They mirror the
// messages of proto/group.proto field for field, JSON names included.
// Assignments are never
// part of Group; a member only learns their own assignee through JoinGroup
// and GetAssignment.
package api

// Member is the public view of a group member.
type Member struct {
	Name      string   `json:"name"`
	Wishlist  []string `json:"wishlist"`
	HasJoined bool     `json:"has_joined"`
}

// Group is the public view of a group.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Budget    float64   `json:"budget"`
	Owner     string    `json:"owner"`
	Members   []*Member `json:"members"`
	CreatedAt int64     `json:"created_at"`
}

// Assignee is the member someone gives a gift to.
type Assignee struct {
	Name     string   `json:"name"`
	Wishlist []string `json:"wishlist"`
}

type CreateGroupRequest struct {
	Name    string   `json:"name"`
	Budget  float64  `json:"budget"`
	Members []string `json:"members"`
}

type CreateGroupResponse struct {
	Group *Group `json:"group"`
	// JoinRef is the reference to share with members.
	JoinRef string `json:"join_ref"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type GetGroupResponse struct {
	Group *Group `json:"group"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

type FilterGroupsRequest struct {
	GroupIDs []string `json:"group_ids"`
}

type FilterGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

type JoinGroupRequest struct {
	GroupID string `json:"group_id,omitempty"`
	// JoinRef may be sent instead of GroupID; the server verifies it.
	JoinRef string `json:"join_ref,omitempty"`
	Name    string `json:"name"`
}

type JoinGroupResponse struct {
	GroupID string `json:"group_id"`
	// MemberName is the roster spelling of the name the caller joined as.
	MemberName string    `json:"member_name"`
	Assignee   *Assignee `json:"assignee"`
}

type GetAssignmentRequest struct {
	GroupID    string `json:"group_id"`
	MemberName string `json:"member_name"`
}

type GetAssignmentResponse struct {
	Assignee *Assignee `json:"assignee"`
}

type UpdateWishlistRequest struct {
	GroupID    string   `json:"group_id"`
	MemberName string   `json:"member_name"`
	Wishlist   []string `json:"wishlist"`
}

type UpdateWishlistResponse struct {
	Group *Group `json:"group"`
}

type EditGroupRequest struct {
	GroupID   string  `json:"group_id"`
	Requester string  `json:"requester"`
	Name      string  `json:"name"`
	Budget    float64 `json:"budget"`
}

type EditGroupResponse struct {
	Group *Group `json:"group"`
}

type DeleteGroupRequest struct {
	GroupID   string `json:"group_id"`
	Requester string `json:"requester"`
}

type DeleteGroupResponse struct {
	Message string `json:"message"`
}
