package domain

// User is the projection-relevant view of an account.
type User struct {
	ID        int64
	Username  string
	Email     string
	Role      string
	ImagePath *string
	IsBlocked bool
}

// Page is the projection-relevant view of a page. Followers and Posts are counts.
type Page struct {
	ID          int64
	Owner       User
	Name        string
	UUID        string
	Followers   int
	Posts       int
	UnblockDate *string
}

// Post is the projection-relevant view of a post. LikedBy is a count.
type Post struct {
	ID      int64
	PageID  int64
	Title   string
	Content string
	ReplyTo *int64
	LikedBy int
}
