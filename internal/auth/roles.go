package auth

import "sort"

// RoleSet is a set of role names.
type RoleSet map[string]struct{}

func NewRoleSet(roles ...string) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

func (s RoleSet) Has(role string) bool {
	_, ok := s[role]
	return ok
}

// Intersects reports whether the two sets share at least one role.
func (s RoleSet) Intersects(other RoleSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for r := range small {
		if large.Has(r) {
			return true
		}
	}
	return false
}

func (s RoleSet) Slice() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// EnsureRole passes when the identity holds any of the required roles.
func EnsureRole(id *Identity, required RoleSet) error {
	if id == nil || !id.Roles.Intersects(required) {
		return ErrForbidden
	}
	return nil
}
