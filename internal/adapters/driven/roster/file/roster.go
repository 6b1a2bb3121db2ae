// Package file loads the tracked-member roster from a JSON file: an array
// of member objects indexed under every identity a provider may report.
package file

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
)

// Load reads the roster file and builds the multi-key index.
func Load(path string) (*domain.Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}

	var members []*domain.Member
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("decoding roster %s: %w", path, err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: roster %s has no members", domain.ErrInvalidInput, path)
	}
	for i, m := range members {
		if m.Name == "" && m.Email == "" && m.GithubID == "" && m.ForumID == "" {
			return nil, fmt.Errorf("%w: roster member %d has no identity keys", domain.ErrInvalidInput, i)
		}
	}
	return domain.NewRoster(members), nil
}
