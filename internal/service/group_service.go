package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/kriskindle/internal/membership"
	"github.com/mmynk/kriskindle/internal/models"
	"github.com/mmynk/kriskindle/pkg/api"
	"github.com/mmynk/kriskindle/pkg/api/apiconnect"
)

// GroupService implements the Connect GroupService on top of the
// membership engine.
type GroupService struct {
	apiconnect.UnimplementedGroupServiceHandler
	members *membership.Service
}

// NewGroupService creates a new GroupService backed by the membership engine.
func NewGroupService(members *membership.Service) *GroupService {
	return &GroupService{members: members}
}

// CreateGroup creates a new group with its secret assignment.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	res, err := s.members.CreateGroup(ctx, req.Msg.Name, req.Msg.Budget, req.Msg.Members)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CreateGroupResponse{
		Group:   toProtoGroup(res.Group),
		JoinRef: res.JoinRef,
	}), nil
}

// GetGroup retrieves a group by ID.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	group, err := s.members.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.GetGroupResponse{Group: toProtoGroup(group)}), nil
}

// ListGroups retrieves all groups.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	groups, err := s.members.ListGroups(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.ListGroupsResponse{Groups: toProtoGroups(groups)}), nil
}

// FilterGroups retrieves the groups with the requested IDs.
func (s *GroupService) FilterGroups(ctx context.Context, req *connect.Request[api.FilterGroupsRequest]) (*connect.Response[api.FilterGroupsResponse], error) {
	groups, err := s.members.FilterGroups(ctx, req.Msg.GroupIDs)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.FilterGroupsResponse{Groups: toProtoGroups(groups)}), nil
}

// JoinGroup claims a member's spot and returns their assignee.
func (s *GroupService) JoinGroup(ctx context.Context, req *connect.Request[api.JoinGroupRequest]) (*connect.Response[api.JoinGroupResponse], error) {
	groupID := req.Msg.GroupID
	if groupID == "" && req.Msg.JoinRef != "" {
		var err error
		if groupID, err = s.members.ResolveReference(req.Msg.JoinRef); err != nil {
			return nil, toConnectError(err)
		}
	}

	res, err := s.members.JoinGroup(ctx, groupID, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.JoinGroupResponse{
		GroupID:    res.GroupID,
		MemberName: res.Member,
		Assignee:   toProtoAssignee(res.Assignee),
	}), nil
}

// GetAssignment re-reads the assignee of a member who already joined.
func (s *GroupService) GetAssignment(ctx context.Context, req *connect.Request[api.GetAssignmentRequest]) (*connect.Response[api.GetAssignmentResponse], error) {
	assignee, err := s.members.GetAssignment(ctx, req.Msg.GroupID, req.Msg.MemberName)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.GetAssignmentResponse{Assignee: toProtoAssignee(assignee)}), nil
}

// UpdateWishlist replaces a member's wishlist.
func (s *GroupService) UpdateWishlist(ctx context.Context, req *connect.Request[api.UpdateWishlistRequest]) (*connect.Response[api.UpdateWishlistResponse], error) {
	group, err := s.members.UpdateWishlist(ctx, req.Msg.GroupID, req.Msg.MemberName, req.Msg.Wishlist)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.UpdateWishlistResponse{Group: toProtoGroup(group)}), nil
}

// EditGroup updates the group name and budget on behalf of the owner.
func (s *GroupService) EditGroup(ctx context.Context, req *connect.Request[api.EditGroupRequest]) (*connect.Response[api.EditGroupResponse], error) {
	group, err := s.members.EditGroup(ctx, req.Msg.GroupID, req.Msg.Requester, req.Msg.Name, req.Msg.Budget)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.EditGroupResponse{Group: toProtoGroup(group)}), nil
}

// DeleteGroup removes a group on behalf of the owner.
func (s *GroupService) DeleteGroup(ctx context.Context, req *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error) {
	if err := s.members.DeleteGroup(ctx, req.Msg.GroupID, req.Msg.Requester); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.DeleteGroupResponse{Message: "Group deleted successfully"}), nil
}

// toConnectError maps the domain error taxonomy onto Connect codes.
// Internal errors never carry their cause over the wire.
func toConnectError(err error) error {
	var code connect.Code
	switch models.KindOf(err) {
	case models.ErrValidation:
		code = connect.CodeInvalidArgument
	case models.ErrNotFound:
		code = connect.CodeNotFound
	case models.ErrConflict:
		code = connect.CodeAlreadyExists
	case models.ErrUnauthorized:
		code = connect.CodePermissionDenied
	default:
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
	return connect.NewError(code, err)
}

func toProtoGroup(g *models.Group) *api.Group {
	members := make([]*api.Member, len(g.Members))
	for i, m := range g.Members {
		members[i] = &api.Member{
			Name:      m.Name,
			Wishlist:  nonNil(m.Wishlist),
			HasJoined: m.HasJoined,
		}
	}
	return &api.Group{
		ID:        g.ID,
		Name:      g.Name,
		Budget:    g.Budget,
		Owner:     g.Owner,
		Members:   members,
		CreatedAt: g.CreatedAt,
	}
}

func toProtoGroups(groups []*models.Group) []*api.Group {
	out := make([]*api.Group, len(groups))
	for i, g := range groups {
		out[i] = toProtoGroup(g)
	}
	return out
}

func toProtoAssignee(m models.Member) *api.Assignee {
	return &api.Assignee{Name: m.Name, Wishlist: nonNil(m.Wishlist)}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
