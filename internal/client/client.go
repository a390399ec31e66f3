// Package client talks to a kriskindle server and remembers, per device,
// which groups the user belongs to and who they give a gift to.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mmynk/kriskindle/internal/invite"
	"github.com/mmynk/kriskindle/internal/models"
	"github.com/mmynk/kriskindle/pkg/api"
	"github.com/mmynk/kriskindle/pkg/api/apiconnect"
)

// ErrRateLimited is returned when the server asks the client to slow down.
var ErrRateLimited = errors.New("rate limited by server")

// Client wraps the GroupService RPCs and keeps the local membership cache
// in step with them.
type Client struct {
	rpc    apiconnect.GroupServiceClient
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Client for the server at baseURL. A nil httpClient uses
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client, cache Cache, logger *slog.Logger, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return NewWithRPC(apiconnect.NewGroupServiceClient(httpClient, strings.TrimRight(baseURL, "/"), opts...), cache, logger)
}

// NewWithRPC creates a Client over an existing GroupService client.
func NewWithRPC(rpc apiconnect.GroupServiceClient, cache Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{rpc: rpc, cache: cache, logger: logger, now: time.Now}
}

// Cache returns the membership cache.
func (c *Client) Cache() Cache {
	return c.cache
}

// ResolveGroupID turns an invite reference or a bare group ID into a group
// ID without contacting the server.
func ResolveGroupID(ref string) (string, error) {
	ref = lastSegment(ref)
	if id, err := invite.Resolve(ref); err == nil {
		return id, nil
	}
	if _, err := uuid.Parse(ref); err == nil {
		return ref, nil
	}
	return "", models.Validationf("%q is neither a join reference nor a group id", ref)
}

// CreateGroup creates a group and remembers the creator as its owner.
func (c *Client) CreateGroup(ctx context.Context, name string, budget float64, members []string) (*api.CreateGroupResponse, error) {
	resp, err := c.rpc.CreateGroup(ctx, connect.NewRequest(&api.CreateGroupRequest{
		Name:    name,
		Budget:  budget,
		Members: members,
	}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	g := resp.Msg.Group
	if err := c.cache.Put(Membership{
		GroupID:   g.ID,
		GroupName: g.Name,
		Name:      g.Owner,
		UpdatedAt: c.now().Unix(),
	}); err != nil {
		return nil, fmt.Errorf("cache membership: %w", err)
	}
	return resp.Msg, nil
}

// ListGroups returns every group on the server.
func (c *Client) ListGroups(ctx context.Context) ([]*api.Group, error) {
	resp, err := c.rpc.ListGroups(ctx, connect.NewRequest(&api.ListGroupsRequest{}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg.Groups, nil
}

// GetGroup returns one group.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*api.Group, error) {
	resp, err := c.rpc.GetGroup(ctx, connect.NewRequest(&api.GetGroupRequest{GroupID: groupID}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg.Group, nil
}

// MyGroups fetches the groups this device knows about in one call.
func (c *Client) MyGroups(ctx context.Context) ([]*api.Group, error) {
	known, err := c.cache.List()
	if err != nil {
		return nil, err
	}
	if len(known) == 0 {
		return nil, nil
	}
	ids := make([]string, len(known))
	for i, m := range known {
		ids[i] = m.GroupID
	}
	resp, err := c.rpc.FilterGroups(ctx, connect.NewRequest(&api.FilterGroupsRequest{GroupIDs: ids}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg.Groups, nil
}

// Join joins the group named by ref as name. A signed reference is checked
// by the server; a bare group ID is sent as is.
func (c *Client) Join(ctx context.Context, ref, name string) (*api.JoinGroupResponse, error) {
	req := &api.JoinGroupRequest{Name: name}
	ref = lastSegment(ref)
	if _, err := invite.Resolve(ref); err == nil {
		req.JoinRef = ref
	} else {
		req.GroupID = ref
	}

	resp, err := c.rpc.JoinGroup(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fromConnectError(err)
	}

	m, _, err := c.cache.Get(resp.Msg.GroupID)
	if err != nil {
		return nil, err
	}
	m.GroupID = resp.Msg.GroupID
	m.Name = resp.Msg.MemberName
	m.Joined = true
	m.Assignee = resp.Msg.Assignee
	m.UpdatedAt = c.now().Unix()
	if err := c.cache.Put(m); err != nil {
		return nil, fmt.Errorf("cache membership: %w", err)
	}
	return resp.Msg, nil
}

// Assignment fetches the current assignee for the joined member and caches it.
func (c *Client) Assignment(ctx context.Context, groupID string) (*api.Assignee, error) {
	m, err := c.membership(groupID)
	if err != nil {
		return nil, err
	}
	resp, err := c.rpc.GetAssignment(ctx, connect.NewRequest(&api.GetAssignmentRequest{
		GroupID:    groupID,
		MemberName: m.Name,
	}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	m.Joined = true
	m.Assignee = resp.Msg.Assignee
	m.UpdatedAt = c.now().Unix()
	if err := c.cache.Put(m); err != nil {
		return nil, fmt.Errorf("cache membership: %w", err)
	}
	return resp.Msg.Assignee, nil
}

// UpdateWishlist replaces the user's own wishlist in groupID.
func (c *Client) UpdateWishlist(ctx context.Context, groupID string, items []string) (*api.Group, error) {
	m, err := c.membership(groupID)
	if err != nil {
		return nil, err
	}
	resp, err := c.rpc.UpdateWishlist(ctx, connect.NewRequest(&api.UpdateWishlistRequest{
		GroupID:    groupID,
		MemberName: m.Name,
		Wishlist:   items,
	}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg.Group, nil
}

// EditGroup renames the group and changes its budget as the cached member.
func (c *Client) EditGroup(ctx context.Context, groupID, name string, budget float64) (*api.Group, error) {
	m, err := c.membership(groupID)
	if err != nil {
		return nil, err
	}
	resp, err := c.rpc.EditGroup(ctx, connect.NewRequest(&api.EditGroupRequest{
		GroupID:   groupID,
		Requester: m.Name,
		Name:      name,
		Budget:    budget,
	}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	m.GroupName = resp.Msg.Group.Name
	if err := c.cache.Put(m); err != nil {
		return nil, fmt.Errorf("cache membership: %w", err)
	}
	return resp.Msg.Group, nil
}

// DeleteGroup deletes the group as the cached member and forgets it.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	m, err := c.membership(groupID)
	if err != nil {
		return err
	}
	if _, err := c.rpc.DeleteGroup(ctx, connect.NewRequest(&api.DeleteGroupRequest{
		GroupID:   groupID,
		Requester: m.Name,
	})); err != nil {
		return fromConnectError(err)
	}
	return c.cache.Delete(groupID)
}

// Refresh re-reads the assignee of every joined group. Groups that no longer
// exist are dropped from the cache. It returns the memberships whose assignee
// or wishlist changed. A failing group does not stop the others; the errors
// of all failed groups are joined.
func (c *Client) Refresh(ctx context.Context) ([]Membership, error) {
	known, err := c.cache.List()
	if err != nil {
		return nil, err
	}

	var (
		changed []Membership
		errs    []error
	)
	for _, m := range known {
		if !m.Joined {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		before := m.Assignee
		assignee, err := c.Assignment(ctx, m.GroupID)
		if errors.Is(err, models.ErrNotFound) {
			c.logger.Info("Group gone, forgetting it", "group_id", m.GroupID)
			if err := c.cache.Delete(m.GroupID); err != nil {
				errs = append(errs, fmt.Errorf("group %s: %w", m.GroupID, err))
			}
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", m.GroupID, err))
			continue
		}
		if !sameAssignee(before, assignee) {
			m.Assignee = assignee
			changed = append(changed, m)
		}
	}
	return changed, errors.Join(errs...)
}

func (c *Client) membership(groupID string) (Membership, error) {
	m, ok, err := c.cache.Get(groupID)
	if err != nil {
		return Membership{}, err
	}
	if !ok {
		return Membership{}, models.Validationf("not a member of group %s on this device", groupID)
	}
	return m, nil
}

// lastSegment strips an invite link down to its final path segment.
func lastSegment(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}

func sameAssignee(a, b *api.Assignee) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name || len(a.Wishlist) != len(b.Wishlist) {
		return false
	}
	for i := range a.Wishlist {
		if a.Wishlist[i] != b.Wishlist[i] {
			return false
		}
	}
	return true
}

// fromConnectError maps Connect codes back onto the domain taxonomy.
func fromConnectError(err error) error {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return models.Internal(err)
	}
	var kind error
	switch connectErr.Code() {
	case connect.CodeInvalidArgument:
		kind = models.ErrValidation
	case connect.CodeNotFound:
		kind = models.ErrNotFound
	case connect.CodeAlreadyExists:
		kind = models.ErrConflict
	case connect.CodePermissionDenied:
		kind = models.ErrUnauthorized
	case connect.CodeResourceExhausted:
		return fmt.Errorf("%w: %s", ErrRateLimited, connectErr.Message())
	default:
		return models.Internal(err)
	}
	return &models.Error{Kind: kind, Message: connectErr.Message(), Err: err}
}
