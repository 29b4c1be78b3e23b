// Package courts holds the read-only set of bookable courts and resolves the
// names customers use for them.
package courts

import (
	"errors"
	"strings"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
)

// Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	courts  []domain.Court
	byID    map[string]domain.Court
	aliases map[string]string
	byName  map[string]string
}

// NewRegistry indexes courts in configuration order. Aliases pointing at
// unknown ids are ignored.
func NewRegistry(list []domain.Court, aliases map[string]string) (*Registry, error) {
	if len(list) == 0 {
		return nil, errors.New("courts: at least one court is required")
	}
	r := &Registry{
		courts:  make([]domain.Court, 0, len(list)),
		byID:    make(map[string]domain.Court, len(list)),
		aliases: make(map[string]string, len(aliases)),
		byName:  make(map[string]string, len(list)),
	}
	for _, c := range list {
		if c.ID == "" {
			return nil, errors.New("courts: court id is required")
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, errors.New("courts: duplicate court id " + c.ID)
		}
		r.courts = append(r.courts, c)
		r.byID[c.ID] = c
		if name := normalize(c.Name); name != "" {
			if _, taken := r.byName[name]; !taken {
				r.byName[name] = c.ID
			}
		}
	}
	for alias, id := range aliases {
		if _, ok := r.byID[id]; ok {
			r.aliases[normalize(alias)] = id
		}
	}
	return r, nil
}

// Resolve maps a raw court reference to a court and never fails: when nothing
// matches, DefaultCourt is returned.
func (r *Registry) Resolve(nameOrID string) domain.Court {
	if c, ok := r.Lookup(nameOrID); ok {
		return c
	}
	return r.DefaultCourt()
}

// Lookup tries the exact id, then a case-insensitive alias, then a
// case-insensitive display name.
func (r *Registry) Lookup(nameOrID string) (domain.Court, bool) {
	raw := strings.TrimSpace(nameOrID)
	if c, ok := r.byID[raw]; ok {
		return c, true
	}
	key := normalize(raw)
	if key == "" {
		return domain.Court{}, false
	}
	if id, ok := r.aliases[key]; ok {
		return r.byID[id], true
	}
	if id, ok := r.byName[key]; ok {
		return r.byID[id], true
	}
	return domain.Court{}, false
}

// DefaultCourt is the court chosen for references that match nothing: the
// first configured court.
func (r *Registry) DefaultCourt() domain.Court {
	return r.courts[0]
}

// Get returns the court with the exact id.
func (r *Registry) Get(id string) (domain.Court, error) {
	c, ok := r.byID[id]
	if !ok {
		return domain.Court{}, &domain.NotFoundError{Kind: "court", ID: id}
	}
	return c, nil
}

// All returns the courts in configuration order.
func (r *Registry) All() []domain.Court {
	out := make([]domain.Court, len(r.courts))
	copy(out, r.courts)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
