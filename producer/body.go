package producer

import (
	"github.com/innotter/stats/domain"
)

// PageBody is the payload published for op on page. Creation also carries
// the owner's attributes so the projection can materialize the owner.
func PageBody(op domain.Operation, page domain.Page) map[string]any {
	if op == domain.OpDelete {
		return map[string]any{domain.PrimaryKey: page.ID}
	}

	body := map[string]any{
		domain.PrimaryKey: page.ID,
		"owner_id":        page.Owner.ID,
		"name":            page.Name,
		"uuid":            page.UUID,
		"followers":       page.Followers,
		"posts":           page.Posts,
		"unblock_date":    optional(page.UnblockDate),
	}

	if op == domain.OpCreate {
		body["owner_username"] = page.Owner.Username
		body["owner_email"] = page.Owner.Email
		body["owner_role"] = page.Owner.Role
		body["owner_is_blocked"] = page.Owner.IsBlocked
		body["owner_image_path"] = optional(page.Owner.ImagePath)
	}

	return body
}

// PostBody is the payload published for op on post. A like only carries
// the new like count.
func PostBody(op domain.Operation, post domain.Post) map[string]any {
	switch op {
	case domain.OpDelete:
		return map[string]any{domain.PrimaryKey: post.ID}
	case domain.OpLike:
		return map[string]any{
			domain.PrimaryKey: post.ID,
			"liked_by":        post.LikedBy,
		}
	default:
		body := map[string]any{
			domain.PrimaryKey: post.ID,
			"page":            post.PageID,
			"title":           post.Title,
			"content":         post.Content,
			"reply_to":        nil,
			"liked_by":        post.LikedBy,
		}

		if post.ReplyTo != nil {
			body["reply_to"] = *post.ReplyTo
		}

		return body
	}
}

// UserBody is the payload published for any user operation.
func UserBody(user domain.User) map[string]any {
	return map[string]any{
		domain.PrimaryKey: user.ID,
		"username":        user.Username,
		"email":           user.Email,
		"role":            user.Role,
		"is_blocked":      user.IsBlocked,
		"image_path":      optional(user.ImagePath),
	}
}

func optional(value *string) any {
	if value == nil {
		return nil
	}

	return *value
}
