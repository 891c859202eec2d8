package state

import "math/big"

// User is a protocol participant identified by a settlement-layer address.
// HealthFactor is a cached Ray value refreshed after every debt mutation;
// nil means undefined (no outstanding debt, or no usable price data).
type User struct {
	Address      string
	HealthFactor *big.Int
	CreatedAt    int64
}

// UserRegistry tracks known users by address.
type UserRegistry struct {
	users map[string]*User
}

func NewUserRegistry() *UserRegistry {
	return &UserRegistry{
		users: make(map[string]*User),
	}
}

// Get returns the user or nil.
func (r *UserRegistry) Get(address string) *User {
	return r.users[address]
}

// GetOrCreate returns the user, creating it on first contact.
func (r *UserRegistry) GetOrCreate(address string, now int64) *User {
	if u := r.users[address]; u != nil {
		return u
	}
	u := &User{Address: address, CreatedAt: now}
	r.users[address] = u
	return u
}

// Restore inserts a user loaded from persistence.
func (r *UserRegistry) Restore(u *User) {
	r.users[u.Address] = u
}

// All returns every known user.
func (r *UserRegistry) All() []*User {
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out
}
