package service

import (
	"context"
	"strings"

	"github.com/mmynk/limitly/internal/apperr"
	"github.com/mmynk/limitly/internal/middleware"
	"github.com/mmynk/limitly/internal/models"
	"github.com/mmynk/limitly/internal/storage"
)

// callerID returns the authenticated user. RequireAuth guarantees it is set
// on every private procedure.
func callerID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

func requireID(value, field string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperr.Validation("%s is required", field)
	}
	return value, nil
}

// memberGroup loads a group the caller must belong to.
func memberGroup(ctx context.Context, store storage.GroupStore, groupID, userID string) (*models.Group, error) {
	groupID, err := requireID(groupID, "group_id")
	if err != nil {
		return nil, err
	}
	group, err := store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, storeErr(err, "group")
	}
	if !group.HasMember(userID) {
		return nil, apperr.Forbidden("not a member of this group")
	}
	return group, nil
}

// ownedGroup loads a group the caller must have created.
func ownedGroup(ctx context.Context, store storage.GroupStore, groupID, userID string) (*models.Group, error) {
	groupID, err := requireID(groupID, "group_id")
	if err != nil {
		return nil, err
	}
	group, err := store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, storeErr(err, "group")
	}
	if group.CreatedBy != userID {
		return nil, apperr.Forbidden("only the group owner can do this")
	}
	return group, nil
}

// usersOf loads the users behind ids, keyed by ID.
func usersOf(ctx context.Context, store storage.UserStore, ids []string) (map[string]*models.User, error) {
	users, err := store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return users, nil
}

func parseCurrency(code, fallback string) (string, error) {
	c, err := models.ParseCurrency(code, fallback)
	if err != nil {
		return "", apperr.Validation("%v", err).WithReason(apperr.ReasonUnsupportedCurrency)
	}
	return c, nil
}

func parseCategory(s string) (models.Category, error) {
	c, err := models.ParseCategory(s)
	if err != nil {
		return "", apperr.Validation("%v", err)
	}
	return c, nil
}

func invalidSplitErr(err error) error {
	return apperr.Validation("%v", err).WithReason(apperr.ReasonInvalidSplit)
}
