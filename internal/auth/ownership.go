package auth

import "github.com/isdelr/todo-auth-be/internal/common"

// AuthorizeOwner allows the action only when the acting user owns the resource.
func AuthorizeOwner(resourceOwnerID, actingUserID int64) error {
	if resourceOwnerID != actingUserID {
		return common.ErrForbidden
	}
	return nil
}
