// Package model holds the plain data types shared across the
// coordination engine: users, topic packages, snapshots and the
// in-memory proposal. Nothing here does I/O.
package model

// InitialRating is the rating assigned to a brand-new user, displayed
// to players divided by 10.
const InitialRating = 15000

// User is a registered player. Rating is an unsigned integer; the
// display value is Rating/10.
type User struct {
	UserID      int64
	DisplayName string
	Rating      uint32
}

func NewUser(userID int64, displayName string) *User {
	return &User{
		UserID:      userID,
		DisplayName: displayName,
		Rating:      InitialRating,
	}
}

// DisplayRating returns the rating as shown to players.
func (u *User) DisplayRating() float64 {
	return float64(u.Rating) / 10
}

// Costs in ascending order for the five questions of a topic.
var QuestionCosts = [5]int{10, 20, 30, 40, 50}

// Question is one graded question within a Topic.
type Question struct {
	Cost            int      `json:"cost"`
	Prompt          string   `json:"prompt"`
	AcceptedAnswers []string `json:"accepted_answers"`
	Comment         string   `json:"comment,omitempty"`
}

// Topic is a named group of five questions of ascending cost.
type Topic struct {
	Name      string     `json:"name"`
	Questions [5]Question `json:"questions"`
}

// TopicPackage is an immutable (once uploaded) collection of topics.
type TopicPackage struct {
	PackageID   string  `json:"package_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Topics      []Topic `json:"topics"`
}

// RankedUser is one row of the sorted-rating listing, with a dense
// rank (ties share a rank, no gaps after ties).
type RankedUser struct {
	Rank int
	User User
}

// BanResult is the outcome of a ban-list insertion attempt.
type BanResult int

const (
	BanAdded BanResult = iota
	BanAlreadyPresent
	BanAtLimit
)

const (
	// MaxBanListSize is the cap on a user's ban list (§3).
	MaxBanListSize = 50
	// MaxRecentOpponents is the cap on a user's recent-opponents list (§3).
	MaxRecentOpponents = 10
)
