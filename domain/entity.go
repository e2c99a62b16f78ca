// Package domain describes the entities mirrored into the projection and the
// operations that mutate them.
package domain

import (
	"fmt"
	"strings"
)

// EntityType is the kind of record an event targets.
type EntityType int

const (
	EntityUnknown EntityType = iota
	EntityUser
	EntityPage
	EntityPost
)

// Table returns the physical table name holding this entity type.
func (e EntityType) Table() string {
	switch e {
	case EntityUser:
		return "users"
	case EntityPage:
		return "pages"
	case EntityPost:
		return "posts"
	default:
		return ""
	}
}

func (e EntityType) String() string {
	switch e {
	case EntityUser:
		return "user"
	case EntityPage:
		return "page"
	case EntityPost:
		return "post"
	default:
		return "unknown"
	}
}

// EntityFromTable maps a table name back to its entity type.
func EntityFromTable(table string) (EntityType, error) {
	for _, entity := range []EntityType{EntityUser, EntityPage, EntityPost} {
		if entity.Table() == table {
			return entity, nil
		}
	}

	return EntityUnknown, fmt.Errorf("%w: table %q", ErrUnknownEntity, table)
}

// Operation is the mutation applied to an entity.
type Operation int

const (
	OpUnknown Operation = iota
	OpCreate
	OpUpdate
	OpDelete
	OpLike
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpLike:
		return "like"
	default:
		return "unknown"
	}
}

// IsPatch reports whether the operation carries a sparse set of fields.
func (o Operation) IsPatch() bool {
	return o == OpUpdate || o == OpLike
}

func operationFromString(value string) (Operation, error) {
	for _, op := range []Operation{OpCreate, OpUpdate, OpDelete, OpLike} {
		if op.String() == value {
			return op, nil
		}
	}

	return OpUnknown, fmt.Errorf("%w: operation %q", ErrUnknownMethod, value)
}

// Method is the (operation, entity) pair an envelope is tagged with.
type Method struct {
	Op     Operation
	Entity EntityType
}

// Methods that may travel on the exchange.
var (
	CreatePages = Method{Op: OpCreate, Entity: EntityPage}
	UpdatePages = Method{Op: OpUpdate, Entity: EntityPage}
	DeletePages = Method{Op: OpDelete, Entity: EntityPage}
	CreatePosts = Method{Op: OpCreate, Entity: EntityPost}
	UpdatePosts = Method{Op: OpUpdate, Entity: EntityPost}
	LikePosts   = Method{Op: OpLike, Entity: EntityPost}
	DeletePosts = Method{Op: OpDelete, Entity: EntityPost}
	CreateUsers = Method{Op: OpCreate, Entity: EntityUser}
	UpdateUsers = Method{Op: OpUpdate, Entity: EntityUser}
)

var knownMethods = map[Method]struct{}{
	CreatePages: {}, UpdatePages: {}, DeletePages: {},
	CreatePosts: {}, UpdatePosts: {}, LikePosts: {}, DeletePosts: {},
	CreateUsers: {}, UpdateUsers: {},
}

// Methods returns every supported method.
func Methods() []Method {
	return []Method{
		CreatePages, UpdatePages, DeletePages,
		CreatePosts, UpdatePosts, LikePosts, DeletePosts,
		CreateUsers, UpdateUsers,
	}
}

// Valid reports whether the pair is one of the supported methods.
func (m Method) Valid() bool {
	_, ok := knownMethods[m]

	return ok
}

// String renders the wire tag, e.g. "create_pages".
func (m Method) String() string {
	return m.Op.String() + "_" + m.Entity.Table()
}

// ParseMethod parses a wire tag such as "like_posts".
func ParseMethod(tag string) (Method, error) {
	verb, table, ok := strings.Cut(strings.TrimSpace(tag), "_")
	if !ok {
		return Method{}, fmt.Errorf("%w: %q", ErrUnknownMethod, tag)
	}

	op, err := operationFromString(verb)
	if err != nil {
		return Method{}, err
	}

	entity, err := EntityFromTable(table)
	if err != nil {
		return Method{}, fmt.Errorf("%w: %q", ErrUnknownMethod, tag)
	}

	method := Method{Op: op, Entity: entity}
	if !method.Valid() {
		return Method{}, fmt.Errorf("%w: %q", ErrUnknownMethod, tag)
	}

	return method, nil
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, m)
	}

	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}

	*m = parsed

	return nil
}
