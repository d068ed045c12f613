package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mmynk/limitly/internal/apperr"
	"github.com/mmynk/limitly/internal/models"
	"github.com/mmynk/limitly/internal/storage"
)

const (
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeLength   = 6
	inviteCodeAttempts = 5
)

// GroupService implements the Connect GroupService
type GroupService struct {
	store           storage.Store
	defaultCurrency string
	newInviteCode   func() (string, error)
}

// NewGroupService creates a new GroupService with the given storage backend.
// Groups created without a base currency use defaultCurrency.
func NewGroupService(store storage.Store, defaultCurrency string) *GroupService {
	return &GroupService{
		store:           store,
		defaultCurrency: defaultCurrency,
		newInviteCode:   randomInviteCode,
	}
}

// Handler returns the path prefix and handler serving GroupService.
func (s *GroupService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	p := newProcedureSet(GroupServiceName, opts)
	handle(p, "CreateGroup", s.CreateGroup)
	handle(p, "JoinGroup", s.JoinGroup)
	handle(p, "ListGroups", s.ListGroups)
	handle(p, "GetGroup", s.GetGroup)
	handle(p, "UpdateGroup", s.UpdateGroup)
	handle(p, "DeleteGroup", s.DeleteGroup)
	return p.mount()
}

// randomInviteCode draws a code uniformly from inviteCodeAlphabet.
func randomInviteCode() (string, error) {
	n := big.NewInt(int64(len(inviteCodeAlphabet)))
	code := make([]byte, inviteCodeLength)
	for i := range code {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		code[i] = inviteCodeAlphabet[idx.Int64()]
	}
	return string(code), nil
}

// CreateGroup creates a new group owned by the caller.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	userID := callerID(ctx)
	slog.Info("CreateGroup request received", "user_id", userID, "name", req.Msg.Name)

	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, toConnectError(apperr.Validation("name is required"))
	}
	baseCurrency, err := parseCurrency(req.Msg.BaseCurrency, s.defaultCurrency)
	if err != nil {
		return nil, toConnectError(err)
	}

	now := time.Now().Unix()
	group := &models.Group{
		ID:           uuid.New().String(),
		Name:         name,
		BaseCurrency: baseCurrency,
		CreatedBy:    userID,
		Members:      []string{userID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.insertWithInviteCode(ctx, group); err != nil {
		slog.Error("CreateGroup failed", "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Group created", "group_id", group.ID, "invite_code", group.InviteCode)
	return s.groupResponse(ctx, group)
}

// insertWithInviteCode retries on invite code collisions.
func (s *GroupService) insertWithInviteCode(ctx context.Context, group *models.Group) error {
	for attempt := 1; attempt <= inviteCodeAttempts; attempt++ {
		code, err := s.newInviteCode()
		if err != nil {
			return apperr.Internal(err)
		}
		group.InviteCode = code

		err = s.store.CreateGroup(ctx, group)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return apperr.Internal(err)
		}
		slog.Warn("Invite code collision", "attempt", attempt)
	}
	return apperr.Conflict("could not allocate a unique invite code").
		WithReason(apperr.ReasonInviteCodeCollision)
}

// JoinGroup adds the caller to the group behind an invite code.
func (s *GroupService) JoinGroup(ctx context.Context, req *connect.Request[JoinGroupRequest]) (*connect.Response[GroupResponse], error) {
	userID := callerID(ctx)
	code := strings.ToUpper(strings.TrimSpace(req.Msg.InviteCode))
	slog.Info("JoinGroup request received", "user_id", userID, "invite_code", code)

	if code == "" {
		return nil, toConnectError(apperr.Validation("invite_code is required"))
	}

	group, err := s.store.GetGroupByInviteCode(ctx, code)
	if err != nil {
		return nil, toConnectError(storeErr(err, "group"))
	}

	alreadyMember := apperr.Conflict("already a member of this group").WithReason(apperr.ReasonAlreadyMember)
	if group.HasMember(userID) {
		return nil, toConnectError(alreadyMember)
	}
	if err := s.store.AddGroupMember(ctx, group.ID, userID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, toConnectError(alreadyMember)
		}
		return nil, toConnectError(storeErr(err, "group"))
	}
	group.Members = append(group.Members, userID)

	slog.Info("User joined group", "group_id", group.ID, "user_id", userID)
	return s.groupResponse(ctx, group)
}

// ListGroups returns the caller's groups with member names.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error) {
	userID := callerID(ctx)

	groups, err := s.store.ListGroupsByMember(ctx, userID)
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}

	var ids []string
	for _, g := range groups {
		ids = append(ids, g.Members...)
	}
	users, err := usersOf(ctx, s.store, ids)
	if err != nil {
		return nil, toConnectError(err)
	}

	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = toGroup(g, users)
	}

	slog.Info("ListGroups successful", "user_id", userID, "count", len(out))
	return connect.NewResponse(&ListGroupsResponse{Groups: out}), nil
}

// GetGroup retrieves a group the caller belongs to.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, callerID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.groupResponse(ctx, group)
}

// UpdateGroup renames a group or changes its base currency. Owner only.
// Existing expense amounts are not re-converted.
func (s *GroupService) UpdateGroup(ctx context.Context, req *connect.Request[UpdateGroupRequest]) (*connect.Response[GroupResponse], error) {
	userID := callerID(ctx)
	slog.Info("UpdateGroup request received", "group_id", req.Msg.GroupID, "user_id", userID)

	group, err := ownedGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	if req.Msg.Name != nil {
		name := strings.TrimSpace(*req.Msg.Name)
		if name == "" {
			return nil, toConnectError(apperr.Validation("name cannot be empty"))
		}
		group.Name = name
	}
	if req.Msg.BaseCurrency != nil {
		baseCurrency, err := parseCurrency(*req.Msg.BaseCurrency, group.BaseCurrency)
		if err != nil {
			return nil, toConnectError(err)
		}
		group.BaseCurrency = baseCurrency
	}

	if err := s.store.UpdateGroup(ctx, group); err != nil {
		return nil, toConnectError(storeErr(err, "group"))
	}

	slog.Info("Group updated", "group_id", group.ID)
	return s.groupResponse(ctx, group)
}

// DeleteGroup removes a group with its expenses and payments. Owner only.
func (s *GroupService) DeleteGroup(ctx context.Context, req *connect.Request[DeleteGroupRequest]) (*connect.Response[DeleteGroupResponse], error) {
	userID := callerID(ctx)
	slog.Info("DeleteGroup request received", "group_id", req.Msg.GroupID, "user_id", userID)

	group, err := ownedGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	if err := s.store.DeleteGroup(ctx, group.ID); err != nil {
		slog.Error("DeleteGroup failed", "group_id", group.ID, "error", err)
		return nil, toConnectError(storeErr(err, "group"))
	}

	slog.Info("Group deleted", "group_id", group.ID)
	return connect.NewResponse(&DeleteGroupResponse{}), nil
}

func (s *GroupService) groupResponse(ctx context.Context, group *models.Group) (*connect.Response[GroupResponse], error) {
	users, err := usersOf(ctx, s.store, group.Members)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: toGroup(group, users)}), nil
}
