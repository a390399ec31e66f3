// Package apiconnect wires kriskindle.v1.GroupService to Connect handlers
// and clients.
package apiconnect

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/kriskindle/pkg/api"
)

// GroupServiceName is the fully-qualified name of the GroupService service.
const GroupServiceName = "kriskindle.v1.GroupService"

// Procedure paths for each GroupService RPC.
const (
	GroupServiceCreateGroupProcedure    = "/kriskindle.v1.GroupService/CreateGroup"
	GroupServiceGetGroupProcedure       = "/kriskindle.v1.GroupService/GetGroup"
	GroupServiceListGroupsProcedure     = "/kriskindle.v1.GroupService/ListGroups"
	GroupServiceFilterGroupsProcedure   = "/kriskindle.v1.GroupService/FilterGroups"
	GroupServiceJoinGroupProcedure      = "/kriskindle.v1.GroupService/JoinGroup"
	GroupServiceGetAssignmentProcedure  = "/kriskindle.v1.GroupService/GetAssignment"
	GroupServiceUpdateWishlistProcedure = "/kriskindle.v1.GroupService/UpdateWishlist"
	GroupServiceEditGroupProcedure      = "/kriskindle.v1.GroupService/EditGroup"
	GroupServiceDeleteGroupProcedure    = "/kriskindle.v1.GroupService/DeleteGroup"
)

// GroupServiceHandler is implemented by the server.
type GroupServiceHandler interface {
	CreateGroup(context.Context, *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error)
	GetGroup(context.Context, *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error)
	ListGroups(context.Context, *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error)
	FilterGroups(context.Context, *connect.Request[api.FilterGroupsRequest]) (*connect.Response[api.FilterGroupsResponse], error)
	JoinGroup(context.Context, *connect.Request[api.JoinGroupRequest]) (*connect.Response[api.JoinGroupResponse], error)
	GetAssignment(context.Context, *connect.Request[api.GetAssignmentRequest]) (*connect.Response[api.GetAssignmentResponse], error)
	UpdateWishlist(context.Context, *connect.Request[api.UpdateWishlistRequest]) (*connect.Response[api.UpdateWishlistResponse], error)
	EditGroup(context.Context, *connect.Request[api.EditGroupRequest]) (*connect.Response[api.EditGroupResponse], error)
	DeleteGroup(context.Context, *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error)
}

// NewGroupServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself. The JSON codec is always installed.
func NewGroupServiceHandler(svc GroupServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(api.Codec{})}, opts...)

	handlers := map[string]http.Handler{
		GroupServiceCreateGroupProcedure:    connect.NewUnaryHandler(GroupServiceCreateGroupProcedure, svc.CreateGroup, opts...),
		GroupServiceGetGroupProcedure:       connect.NewUnaryHandler(GroupServiceGetGroupProcedure, svc.GetGroup, opts...),
		GroupServiceListGroupsProcedure:     connect.NewUnaryHandler(GroupServiceListGroupsProcedure, svc.ListGroups, opts...),
		GroupServiceFilterGroupsProcedure:   connect.NewUnaryHandler(GroupServiceFilterGroupsProcedure, svc.FilterGroups, opts...),
		GroupServiceJoinGroupProcedure:      connect.NewUnaryHandler(GroupServiceJoinGroupProcedure, svc.JoinGroup, opts...),
		GroupServiceGetAssignmentProcedure:  connect.NewUnaryHandler(GroupServiceGetAssignmentProcedure, svc.GetAssignment, opts...),
		GroupServiceUpdateWishlistProcedure: connect.NewUnaryHandler(GroupServiceUpdateWishlistProcedure, svc.UpdateWishlist, opts...),
		GroupServiceEditGroupProcedure:      connect.NewUnaryHandler(GroupServiceEditGroupProcedure, svc.EditGroup, opts...),
		GroupServiceDeleteGroupProcedure:    connect.NewUnaryHandler(GroupServiceDeleteGroupProcedure, svc.DeleteGroup, opts...),
	}

	return "/" + GroupServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// GroupServiceClient is a client for kriskindle.v1.GroupService.
type GroupServiceClient interface {
	CreateGroup(context.Context, *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error)
	GetGroup(context.Context, *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error)
	ListGroups(context.Context, *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error)
	FilterGroups(context.Context, *connect.Request[api.FilterGroupsRequest]) (*connect.Response[api.FilterGroupsResponse], error)
	JoinGroup(context.Context, *connect.Request[api.JoinGroupRequest]) (*connect.Response[api.JoinGroupResponse], error)
	GetAssignment(context.Context, *connect.Request[api.GetAssignmentRequest]) (*connect.Response[api.GetAssignmentResponse], error)
	UpdateWishlist(context.Context, *connect.Request[api.UpdateWishlistRequest]) (*connect.Response[api.UpdateWishlistResponse], error)
	EditGroup(context.Context, *connect.Request[api.EditGroupRequest]) (*connect.Response[api.EditGroupResponse], error)
	DeleteGroup(context.Context, *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error)
}

// NewGroupServiceClient constructs a client for the service at baseURL
// (e.g. http://localhost:8080).
func NewGroupServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) GroupServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(api.Codec{})}, opts...)
	return &groupServiceClient{
		createGroup:    connect.NewClient[api.CreateGroupRequest, api.CreateGroupResponse](httpClient, baseURL+GroupServiceCreateGroupProcedure, opts...),
		getGroup:       connect.NewClient[api.GetGroupRequest, api.GetGroupResponse](httpClient, baseURL+GroupServiceGetGroupProcedure, opts...),
		listGroups:     connect.NewClient[api.ListGroupsRequest, api.ListGroupsResponse](httpClient, baseURL+GroupServiceListGroupsProcedure, opts...),
		filterGroups:   connect.NewClient[api.FilterGroupsRequest, api.FilterGroupsResponse](httpClient, baseURL+GroupServiceFilterGroupsProcedure, opts...),
		joinGroup:      connect.NewClient[api.JoinGroupRequest, api.JoinGroupResponse](httpClient, baseURL+GroupServiceJoinGroupProcedure, opts...),
		getAssignment:  connect.NewClient[api.GetAssignmentRequest, api.GetAssignmentResponse](httpClient, baseURL+GroupServiceGetAssignmentProcedure, opts...),
		updateWishlist: connect.NewClient[api.UpdateWishlistRequest, api.UpdateWishlistResponse](httpClient, baseURL+GroupServiceUpdateWishlistProcedure, opts...),
		editGroup:      connect.NewClient[api.EditGroupRequest, api.EditGroupResponse](httpClient, baseURL+GroupServiceEditGroupProcedure, opts...),
		deleteGroup:    connect.NewClient[api.DeleteGroupRequest, api.DeleteGroupResponse](httpClient, baseURL+GroupServiceDeleteGroupProcedure, opts...),
	}
}

type groupServiceClient struct {
	createGroup    *connect.Client[api.CreateGroupRequest, api.CreateGroupResponse]
	getGroup       *connect.Client[api.GetGroupRequest, api.GetGroupResponse]
	listGroups     *connect.Client[api.ListGroupsRequest, api.ListGroupsResponse]
	filterGroups   *connect.Client[api.FilterGroupsRequest, api.FilterGroupsResponse]
	joinGroup      *connect.Client[api.JoinGroupRequest, api.JoinGroupResponse]
	getAssignment  *connect.Client[api.GetAssignmentRequest, api.GetAssignmentResponse]
	updateWishlist *connect.Client[api.UpdateWishlistRequest, api.UpdateWishlistResponse]
	editGroup      *connect.Client[api.EditGroupRequest, api.EditGroupResponse]
	deleteGroup    *connect.Client[api.DeleteGroupRequest, api.DeleteGroupResponse]
}

func (c *groupServiceClient) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *groupServiceClient) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

func (c *groupServiceClient) ListGroups(ctx context.Context, req *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	return c.listGroups.CallUnary(ctx, req)
}

func (c *groupServiceClient) FilterGroups(ctx context.Context, req *connect.Request[api.FilterGroupsRequest]) (*connect.Response[api.FilterGroupsResponse], error) {
	return c.filterGroups.CallUnary(ctx, req)
}

func (c *groupServiceClient) JoinGroup(ctx context.Context, req *connect.Request[api.JoinGroupRequest]) (*connect.Response[api.JoinGroupResponse], error) {
	return c.joinGroup.CallUnary(ctx, req)
}

func (c *groupServiceClient) GetAssignment(ctx context.Context, req *connect.Request[api.GetAssignmentRequest]) (*connect.Response[api.GetAssignmentResponse], error) {
	return c.getAssignment.CallUnary(ctx, req)
}

func (c *groupServiceClient) UpdateWishlist(ctx context.Context, req *connect.Request[api.UpdateWishlistRequest]) (*connect.Response[api.UpdateWishlistResponse], error) {
	return c.updateWishlist.CallUnary(ctx, req)
}

func (c *groupServiceClient) EditGroup(ctx context.Context, req *connect.Request[api.EditGroupRequest]) (*connect.Response[api.EditGroupResponse], error) {
	return c.editGroup.CallUnary(ctx, req)
}

func (c *groupServiceClient) DeleteGroup(ctx context.Context, req *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error) {
	return c.deleteGroup.CallUnary(ctx, req)
}

// UnimplementedGroupServiceHandler returns CodeUnimplemented from all methods.
type UnimplementedGroupServiceHandler struct{}

func (UnimplementedGroupServiceHandler) CreateGroup(context.Context, *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	return nil, unimplemented("CreateGroup")
}

func (UnimplementedGroupServiceHandler) GetGroup(context.Context, *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	return nil, unimplemented("GetGroup")
}

func (UnimplementedGroupServiceHandler) ListGroups(context.Context, *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	return nil, unimplemented("ListGroups")
}

func (UnimplementedGroupServiceHandler) FilterGroups(context.Context, *connect.Request[api.FilterGroupsRequest]) (*connect.Response[api.FilterGroupsResponse], error) {
	return nil, unimplemented("FilterGroups")
}

func (UnimplementedGroupServiceHandler) JoinGroup(context.Context, *connect.Request[api.JoinGroupRequest]) (*connect.Response[api.JoinGroupResponse], error) {
	return nil, unimplemented("JoinGroup")
}

func (UnimplementedGroupServiceHandler) GetAssignment(context.Context, *connect.Request[api.GetAssignmentRequest]) (*connect.Response[api.GetAssignmentResponse], error) {
	return nil, unimplemented("GetAssignment")
}

func (UnimplementedGroupServiceHandler) UpdateWishlist(context.Context, *connect.Request[api.UpdateWishlistRequest]) (*connect.Response[api.UpdateWishlistResponse], error) {
	return nil, unimplemented("UpdateWishlist")
}

func (UnimplementedGroupServiceHandler) EditGroup(context.Context, *connect.Request[api.EditGroupRequest]) (*connect.Response[api.EditGroupResponse], error) {
	return nil, unimplemented("EditGroup")
}

func (UnimplementedGroupServiceHandler) DeleteGroup(context.Context, *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error) {
	return nil, unimplemented("DeleteGroup")
}

func unimplemented(method string) error {
	return connect.NewError(connect.CodeUnimplemented, errors.New(GroupServiceName+"."+method+" is not implemented"))
}
