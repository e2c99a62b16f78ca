/*
Package stats aggregates the projection into per-user totals.

Every call scans the pages and posts tables in full, so the cost grows with
the size of the projection rather than with the user's own content.
*/
package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/domain"
)

var (
	ErrMissingField = errors.New("record is missing a required field")
	ErrInvalidField = errors.New("record field is not an integer")
)

const (
	fieldOwner     = "owner_id"
	fieldPage      = "page"
	fieldFollowers = "followers"
	fieldLikes     = "liked_by"
)

// Scanner reads whole tables of the projection.
type Scanner interface {
	Scan(ctx context.Context, table string) ([]codec.Record, error)
}

// Attributes are the decoded fields of one record, without its id.
type Attributes map[string]string

// Stats is the aggregate returned for one user.
type Stats struct {
	Pages          map[int64]Attributes `json:"pages"`
	Posts          map[int64]Attributes `json:"posts"`
	TotalPages     int                  `json:"total_pages"`
	TotalPosts     int                  `json:"total_posts"`
	TotalLikes     int                  `json:"total_likes"`
	TotalFollowers int                  `json:"total_followers"`
}

type Engine struct {
	scanner Scanner
	tracer  trace.Tracer
}

func New(scanner Scanner, tracerProvider trace.TracerProvider) *Engine {
	if tracerProvider == nil {
		tracerProvider = noop.NewTracerProvider()
	}

	return &Engine{
		scanner: scanner,
		tracer:  tracerProvider.Tracer("github.com/innotter/stats/stats"),
	}
}

// Compute collects the pages owned by userID, the posts on those pages and
// their like and follower totals.
func (e *Engine) Compute(ctx context.Context, userID int64) (*Stats, error) {
	ctx, span := e.tracer.Start(ctx, "stats.compute",
		trace.WithAttributes(attribute.Int64("user_id", userID)),
	)
	defer span.End()

	result, err := e.compute(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(
		attribute.Int("total_pages", result.TotalPages),
		attribute.Int("total_posts", result.TotalPosts),
	)

	return result, nil
}

func (e *Engine) compute(ctx context.Context, userID int64) (*Stats, error) {
	pagesTable := domain.EntityPage.Table()

	pages, err := e.collect(ctx, pagesTable, fieldOwner, func(owner int64) bool {
		return owner == userID
	})
	if err != nil {
		return nil, err
	}

	postsTable := domain.EntityPost.Table()

	posts, err := e.collect(ctx, postsTable, fieldPage, func(page int64) bool {
		_, ok := pages[page]

		return ok
	})
	if err != nil {
		return nil, err
	}

	result := &Stats{
		Pages:      pages,
		Posts:      posts,
		TotalPages: len(pages),
		TotalPosts: len(posts),
	}

	for id, page := range pages {
		followers, err := intField(pagesTable, id, page, fieldFollowers)
		if err != nil {
			return nil, err
		}

		result.TotalFollowers += int(followers)
	}

	for id, post := range posts {
		likes, err := intField(postsTable, id, post, fieldLikes)
		if err != nil {
			return nil, err
		}

		result.TotalLikes += int(likes)
	}

	return result, nil
}

// collect scans table and keeps the records whose filter field matches.
func (e *Engine) collect(ctx context.Context, table, filter string, keep func(int64) bool) (map[int64]Attributes, error) {
	records, err := e.scanner.Scan(ctx, table)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]Attributes)

	for _, record := range records {
		attrs := Attributes(codec.Decode(record))

		id, err := intField(table, 0, attrs, domain.PrimaryKey)
		if err != nil {
			return nil, err
		}

		value, err := intField(table, id, attrs, filter)
		if err != nil {
			return nil, err
		}

		if !keep(value) {
			continue
		}

		delete(attrs, domain.PrimaryKey)
		out[id] = attrs
	}

	return out, nil
}

func intField(table string, id int64, attrs Attributes, field string) (int64, error) {
	raw, ok := attrs[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s[%d].%s", ErrMissingField, table, id, field)
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s[%d].%s=%q", ErrInvalidField, table, id, field, raw)
	}

	return value, nil
}
