package domain

import "strings"

// Member is one tracked identity from the roster.
type Member struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Title    string `json:"title"`
	GithubID string `json:"github_id"`
	ForumID  string `json:"forum_id,omitempty"`
}

// Roster indexes members under every identity key a provider may report:
// GitHub login, email address, display name and forum username. Jira
// responses carry emails in some places and display names in others, so a
// single-key index is not enough.
type Roster struct {
	byKey   map[string]*Member
	members []*Member
}

// NewRoster builds the multi-key index over the given members.
func NewRoster(members []*Member) *Roster {
	r := &Roster{byKey: make(map[string]*Member)}
	for _, m := range members {
		r.members = append(r.members, m)
		for _, k := range []string{m.GithubID, m.Email, m.Name, m.ForumID} {
			if k != "" {
				r.byKey[strings.ToLower(k)] = m
			}
		}
	}
	return r
}

// Lookup resolves an identity key to a member. Keys are matched
// case-insensitively.
func (r *Roster) Lookup(key string) (*Member, bool) {
	if key == "" {
		return nil, false
	}
	m, ok := r.byKey[strings.ToLower(key)]
	return m, ok
}

// Members returns the roster in load order.
func (r *Roster) Members() []*Member {
	return r.members
}

// Len returns the number of members.
func (r *Roster) Len() int {
	return len(r.members)
}
