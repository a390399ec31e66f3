// Package membership is the gift-exchange engine: it creates groups with a
// secret assignment, lets members join once, keeps wishlists, and gates
// owner-only changes. Joins and wishlists are single-row writes; only owner
// edits go through the store's version check.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/kriskindle/internal/derangement"
	"github.com/mmynk/kriskindle/internal/invite"
	"github.com/mmynk/kriskindle/internal/metrics"
	"github.com/mmynk/kriskindle/internal/models"
	"github.com/mmynk/kriskindle/internal/storage"
)

const (
	DefaultMaxRetries   = 8
	DefaultStoreTimeout = 5 * time.Second

	retryBaseDelay = 2 * time.Millisecond
	retryMaxDelay  = 100 * time.Millisecond
)

// Service implements the membership operations on top of a storage.Store.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	store        storage.Store
	invites      *invite.Issuer
	generator    *derangement.Generator
	metrics      *metrics.Metrics
	logger       *slog.Logger
	maxRetries   int
	storeTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator sets the derangement generator (for seeded tests).
func WithGenerator(g *derangement.Generator) Option {
	return func(s *Service) { s.generator = g }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMaxRetries bounds the read-modify-write attempts of an edit.
func WithMaxRetries(n int) Option {
	return func(s *Service) { s.maxRetries = n }
}

// WithStoreTimeout bounds every individual store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.storeTimeout = d }
}

// New creates a Service.
func New(store storage.Store, invites *invite.Issuer, opts ...Option) *Service {
	s := &Service{
		store:        store,
		invites:      invites,
		generator:    derangement.New(nil),
		logger:       slog.Default(),
		maxRetries:   DefaultMaxRetries,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxRetries < 1 {
		s.maxRetries = 1
	}
	return s
}

// CreateResult is a freshly created group and the reference to share with
// its members.
type CreateResult struct {
	Group   *models.Group
	JoinRef string
}

// JoinResult is what a member learns when joining.
type JoinResult struct {
	GroupID string
	// Member is the canonical roster name the caller joined as.
	Member string
	// Assignee is the member the caller gives a gift to, with their wishlist.
	Assignee models.Member
}

// CreateGroup validates the roster, computes the assignment and persists the
// group in one step. The first member becomes the owner.
func (s *Service) CreateGroup(ctx context.Context, name string, budget float64, memberNames []string) (*CreateResult, error) {
	s.logger.Info("CreateGroup request received",
		"name", name,
		"members_count", len(memberNames),
	)
	res, err := s.createGroup(ctx, name, budget, memberNames)
	if err == nil {
		s.logger.Info("Group created", "group_id", res.Group.ID, "owner", res.Group.Owner)
	}
	return res, s.observe("create_group", err)
}

func (s *Service) createGroup(ctx context.Context, name string, budget float64, memberNames []string) (*CreateResult, error) {
	name = strings.TrimSpace(name)
	if err := models.ValidateGroupDetails(name, budget); err != nil {
		return nil, err
	}
	roster, err := models.NormalizeRoster(memberNames)
	if err != nil {
		return nil, err
	}

	assignment, attempts, err := s.generator.Generate(roster)
	if err != nil {
		return nil, models.Internal(fmt.Errorf("derangement: %w", err))
	}
	s.metrics.ObserveDerangement(attempts)

	group, err := models.NewGroup(name, budget, roster, assignment)
	if err != nil {
		return nil, err
	}
	group.ID = uuid.New().String()

	ref, err := s.invites.Issue(group.ID, group.Name)
	if err != nil {
		return nil, models.Internal(err)
	}

	if err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.store.CreateGroup(ctx, group)
	}); err != nil {
		return nil, models.Internal(fmt.Errorf("persist group: %w", err))
	}

	return &CreateResult{Group: group, JoinRef: ref}, nil
}

// GetGroup returns one group.
func (s *Service) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	g, err := s.load(ctx, groupID)
	return g, s.observe("get_group", err)
}

// ListGroups returns every group.
func (s *Service) ListGroups(ctx context.Context) ([]*models.Group, error) {
	var groups []*models.Group
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		groups, err = s.store.ListGroups(ctx)
		return err
	})
	if err != nil {
		err = models.Internal(fmt.Errorf("list groups: %w", err))
	}
	return groups, s.observe("list_groups", err)
}

// FilterGroups returns the groups whose IDs are listed. Unknown IDs are
// skipped; an empty list is a validation error.
func (s *Service) FilterGroups(ctx context.Context, groupIDs []string) ([]*models.Group, error) {
	groups, err := s.filterGroups(ctx, groupIDs)
	return groups, s.observe("filter_groups", err)
}

func (s *Service) filterGroups(ctx context.Context, groupIDs []string) ([]*models.Group, error) {
	if len(groupIDs) == 0 {
		return nil, models.Validationf("at least one group id is required")
	}
	var groups []*models.Group
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		groups, err = s.store.ListGroupsByIDs(ctx, groupIDs)
		return err
	})
	if err != nil {
		return nil, models.Internal(fmt.Errorf("filter groups: %w", err))
	}
	return groups, nil
}

// JoinGroup claims the named member's spot and reveals their assignee.
// The claim is one conditional row write, so two concurrent joins for the
// same member never both succeed and joins of different members never
// contend.
func (s *Service) JoinGroup(ctx context.Context, groupID, name string) (*JoinResult, error) {
	s.logger.Info("JoinGroup request received", "group_id", groupID)

	res, err := s.joinGroup(ctx, groupID, name)
	if err != nil {
		return nil, s.observe("join_group", err)
	}
	s.logger.Info("Member joined", "group_id", groupID, "member", res.Member)
	return res, s.observe("join_group", nil)
}

func (s *Service) joinGroup(ctx context.Context, groupID, name string) (*JoinResult, error) {
	g, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	joined, assignee, err := g.Join(name)
	if err != nil {
		return nil, err
	}
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return s.store.JoinMember(ctx, g.ID, models.NameKey(joined.Name))
	})
	switch {
	case err == nil:
		return &JoinResult{GroupID: g.ID, Member: joined.Name, Assignee: assignee}, nil
	case errors.Is(err, storage.ErrAlreadyJoined):
		return nil, models.Conflictf("%s has already joined this group", joined.Name)
	case errors.Is(err, storage.ErrMemberNotFound):
		return nil, models.Validationf("no such member")
	default:
		return nil, storeError(groupID, err)
	}
}

// ResolveReference verifies a join reference and returns the group ID it
// names.
func (s *Service) ResolveReference(ref string) (string, error) {
	groupID, err := s.invites.Verify(ref)
	if err != nil {
		s.logger.Info("Join reference rejected", "error", err)
		return "", models.Validationf("invalid join reference")
	}
	return groupID, nil
}

// GetAssignment returns the current assignee of a member who has joined.
func (s *Service) GetAssignment(ctx context.Context, groupID, name string) (models.Member, error) {
	g, err := s.load(ctx, groupID)
	if err != nil {
		return models.Member{}, s.observe("get_assignment", err)
	}
	assignee, err := g.Assignment(name)
	return assignee, s.observe("get_assignment", err)
}

// UpdateWishlist replaces a member's wishlist with exactly items. Only that
// member's row is written.
func (s *Service) UpdateWishlist(ctx context.Context, groupID, memberName string, items []string) (*models.Group, error) {
	s.logger.Info("UpdateWishlist request received",
		"group_id", groupID,
		"items_count", len(items),
	)
	g, err := s.updateWishlist(ctx, groupID, memberName, items)
	return g, s.observe("update_wishlist", err)
}

func (s *Service) updateWishlist(ctx context.Context, groupID, memberName string, items []string) (*models.Group, error) {
	if err := models.ValidateWishlist(items); err != nil {
		return nil, err
	}
	g, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := g.ReplaceWishlist(memberName, items); err != nil {
		return nil, err
	}
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return s.store.SetWishlist(ctx, g.ID, models.NameKey(memberName), items)
	})
	if errors.Is(err, storage.ErrMemberNotFound) {
		return nil, models.NotFoundf("member %q not found in group", memberName)
	}
	if err != nil {
		return nil, storeError(groupID, err)
	}
	return g, nil
}

// EditGroup changes the name and budget. Only the owner may do this, and
// ownership is checked before the new values are.
func (s *Service) EditGroup(ctx context.Context, groupID, requester, name string, budget float64) (*models.Group, error) {
	s.logger.Info("EditGroup request received", "group_id", groupID, "name", name)

	name = strings.TrimSpace(name)
	g, err := s.mutate(ctx, "edit_group", groupID, func(g *models.Group) error {
		return g.Edit(requester, name, budget)
	})
	if err == nil {
		s.logger.Info("Group updated", "group_id", groupID)
	}
	return g, s.observe("edit_group", err)
}

// DeleteGroup removes the group. Only the owner may do this.
func (s *Service) DeleteGroup(ctx context.Context, groupID, requester string) error {
	s.logger.Info("DeleteGroup request received", "group_id", groupID)

	g, err := s.load(ctx, groupID)
	if err != nil {
		return s.observe("delete_group", err)
	}
	if err := g.Authorize(requester); err != nil {
		return s.observe("delete_group", err)
	}
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return s.store.DeleteGroup(ctx, groupID)
	})
	if err != nil {
		return s.observe("delete_group", storeError(groupID, err))
	}

	s.logger.Info("Group deleted", "group_id", groupID)
	return s.observe("delete_group", nil)
}

// mutate runs apply against the latest stored version of a group and writes
// the details back, starting over after a jittered pause whenever another
// edit got there first.
func (s *Service) mutate(ctx context.Context, op, groupID string, apply func(*models.Group) error) (*models.Group, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, retryDelay(attempt-1)); err != nil {
				return nil, models.Internal(fmt.Errorf("%s on group %s: %w", op, groupID, err))
			}
		}
		g, err := s.load(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if err := apply(g); err != nil {
			return nil, err
		}
		err = s.withTimeout(ctx, func(ctx context.Context) error {
			return s.store.UpdateGroup(ctx, g)
		})
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, storeError(groupID, err)
		}
		s.metrics.IncRetry(op)
		s.logger.Debug("Version conflict, retrying", "op", op, "group_id", groupID, "attempt", attempt)
	}
	return nil, models.Internal(fmt.Errorf("%s on group %s: still conflicting after %d attempts", op, groupID, s.maxRetries))
}

// retryDelay returns a random pause in [0, d) where d doubles per failed
// attempt up to retryMaxDelay.
func retryDelay(failures int) time.Duration {
	d := retryBaseDelay << min(failures-1, 6)
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return rand.N(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) load(ctx context.Context, groupID string) (*models.Group, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, models.Validationf("group id is required")
	}
	var g *models.Group
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		g, err = s.store.GetGroup(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, storeError(groupID, err)
	}
	return g, nil
}

func (s *Service) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}

func storeError(groupID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return models.NotFoundf("group %s not found", groupID)
	}
	return models.Internal(err)
}

// observe records the outcome of op and logs internal failures with their
// cause. It returns err unchanged.
func (s *Service) observe(op string, err error) error {
	if err == nil {
		s.metrics.ObserveOperation(op, metrics.OutcomeOK)
		return nil
	}
	kind := models.KindOf(err)
	s.metrics.ObserveOperation(op, outcomeOf(kind))
	if kind == models.ErrInternal {
		cause := err
		if u := errors.Unwrap(err); u != nil {
			cause = u
		}
		s.logger.Error(op+" failed", "error", cause)
		var de *models.Error
		if !errors.As(err, &de) {
			return models.Internal(err)
		}
		return err
	}
	s.logger.Info(op+" rejected", "reason", err.Error())
	return err
}

func outcomeOf(kind error) string {
	switch kind {
	case models.ErrValidation:
		return metrics.OutcomeValidation
	case models.ErrNotFound:
		return metrics.OutcomeNotFound
	case models.ErrConflict:
		return metrics.OutcomeConflict
	case models.ErrUnauthorized:
		return metrics.OutcomeUnauthorized
	default:
		return metrics.OutcomeInternal
	}
}
