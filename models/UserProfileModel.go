package models

import (
	"strings"
	"time"
)

// Name holds the user's display name parts
type Name struct {
	First string `dynamodbav:"first" json:"first"`
	Last  string `dynamodbav:"last" json:"last"`
}

// Full joins first and last name
func (n Name) Full() string {
	return strings.TrimSpace(n.First + " " + n.Last)
}

type AgeRange struct {
	From int `dynamodbav:"from" json:"from"`
	To   int `dynamodbav:"to" json:"to"`
}

type Preferences struct {
	Age AgeRange `dynamodbav:"age" json:"age"`
	Sex string   `dynamodbav:"sex" json:"sex"`
}

// User is a profile plus the relationship ledger owned by that user.
// Liked, Disliked and Matched are only mutated by the relationship service.
type User struct {
	ID           string      `dynamodbav:"id" json:"id"`
	Name         Name        `dynamodbav:"name" json:"name"`
	ProfileImage string      `dynamodbav:"profileImage,omitempty" json:"profileImage,omitempty"`
	Age          int         `dynamodbav:"age" json:"age"`
	Sex          string      `dynamodbav:"sex" json:"sex"`
	Country      string      `dynamodbav:"country" json:"country"`
	Interests    string      `dynamodbav:"interests" json:"interests"`
	Language     []string    `dynamodbav:"language" json:"language"`
	Preferences  Preferences `dynamodbav:"preferences" json:"preferences"`
	Liked        []string    `dynamodbav:"hasLiked" json:"hasLiked"`
	Disliked     []string    `dynamodbav:"hasDisliked" json:"hasDisliked"`
	Matched      []string    `dynamodbav:"hasMatched" json:"hasMatched"`
	CreatedAt    time.Time   `dynamodbav:"createdAt" json:"createdAt"`
	Version      int64       `dynamodbav:"version" json:"-"`
}

// ProfileSummary is what discovery returns for a candidate
type ProfileSummary struct {
	ID        string   `json:"id"`
	FullName  string   `json:"fullName"`
	Age       int      `json:"age"`
	Sex       string   `json:"sex"`
	Country   string   `json:"country"`
	Interests string   `json:"interests"`
	Language  []string `json:"language"`
}

func (u *User) Summary() ProfileSummary {
	return ProfileSummary{
		ID:        u.ID,
		FullName:  u.Name.Full(),
		Age:       u.Age,
		Sex:       u.Sex,
		Country:   u.Country,
		Interests: u.Interests,
		Language:  append([]string(nil), u.Language...),
	}
}

// Clone returns a deep copy so callers never share slices with a store
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Language = append([]string(nil), u.Language...)
	c.Liked = append([]string(nil), u.Liked...)
	c.Disliked = append([]string(nil), u.Disliked...)
	c.Matched = append([]string(nil), u.Matched...)
	return &c
}

func (u *User) HasLiked(id string) bool    { return containsID(u.Liked, id) }
func (u *User) HasDisliked(id string) bool { return containsID(u.Disliked, id) }
func (u *User) HasMatched(id string) bool  { return containsID(u.Matched, id) }

// References reports whether id appears in any relationship set
func (u *User) References(id string) bool {
	return u.HasLiked(id) || u.HasDisliked(id) || u.HasMatched(id)
}

// ForgetPeer removes id from every relationship set and reports whether anything changed
func (u *User) ForgetPeer(id string) bool {
	var changed bool
	u.Liked, changed = removeID(u.Liked, id)
	var c bool
	u.Disliked, c = removeID(u.Disliked, id)
	changed = changed || c
	u.Matched, c = removeID(u.Matched, id)
	return changed || c
}

// AddID appends id to set unless already present
func AddID(set []string, id string) ([]string, bool) {
	if containsID(set, id) {
		return set, false
	}
	return append(set, id), true
}

// RemoveID drops every occurrence of id from set
func RemoveID(set []string, id string) ([]string, bool) {
	return removeID(set, id)
}

func containsID(set []string, id string) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(set []string, id string) ([]string, bool) {
	out := set[:0:0]
	removed := false
	for _, v := range set {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	if !removed {
		return set, false
	}
	return out, true
}

// UserProfilesTable is the DynamoDB table name for users
const UserProfilesTable = "Users"
