package port

import (
	"context"

	"github.com/arturoeanton/go-star-search/internal/domain"
)

// SourceProvider abstracts the code-hosting service that owns the starred list.
type SourceProvider interface {
	// ListStarred returns one page of starred items in ascending star order.
	ListStarred(ctx context.Context, page, pageSize int) ([]domain.Item, error)

	// GetContent returns the item's readme, or "" when it has none.
	GetContent(ctx context.Context, item domain.Item) (string, error)

	// TotalStarredCount returns how many items the user has starred.
	TotalStarredCount(ctx context.Context) (int, error)

	// ValidateCredential reports whether the configured credential is accepted.
	ValidateCredential(ctx context.Context) (bool, error)
}
