package draft

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Actor is one entry in the actors table: a name holding zero or more
// roles, used to expand a stage's Role into Assignees and to authorize
// approve/reject by role membership.
type Actor struct {
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles,omitempty"`
}

// Actors is the full actors table.
type Actors struct {
	Actors []Actor `yaml:"actors"`
}

// LoadActors reads and parses an actors file. A missing file is not an
// error: an empty table means every role check is skipped.
func LoadActors(path string) (Actors, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Actors{}, nil
	}
	if err != nil {
		return Actors{}, fmt.Errorf("draft: read actors: %w", err)
	}
	var a Actors
	if err := yaml.Unmarshal(b, &a); err != nil {
		return Actors{}, fmt.Errorf("draft: parse actors: %w", err)
	}
	return a, nil
}

// ExpandRole returns every actor holding role, capped at maxAssignees (0
// means unlimited).
func (a Actors) ExpandRole(role string, maxAssignees int) []string {
	var out []string
	for _, actor := range a.Actors {
		if hasRole(actor.Roles, role) {
			out = append(out, actor.Name)
			if maxAssignees > 0 && len(out) >= maxAssignees {
				break
			}
		}
	}
	return out
}

// HasRole reports whether actor holds role in the table. An empty table
// (no actors loaded) always reports true, so callers skip the check
// entirely rather than reject everyone.
func (a Actors) HasRole(actor, role string) bool {
	if len(a.Actors) == 0 {
		return true
	}
	for _, ac := range a.Actors {
		if ac.Name == actor {
			return hasRole(ac.Roles, role)
		}
	}
	return false
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
