package model

import "time"

type Role string

const (
	RoleFarmer     Role = "farmer"
	RoleAgronomist Role = "agronomist"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleFarmer, RoleAgronomist, RoleAdmin:
		return true
	}
	return false
}

type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium:
		return true
	}
	return false
}

// Profile is keyed by the identity provider subject.
type Profile struct {
	ID         string
	Email      string
	FullName   string
	Role       Role
	Tier       Tier
	IsVerified bool
	// AILimitOverride replaces the tier's AI prediction limit when set. -1 is unlimited.
	AILimitOverride *int
	Specialization  string
	Location        string
	Bio             string
	Phone           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (p Profile) IsAdmin() bool { return p.Role == RoleAdmin }

// ProfileFilter narrows directory and admin listings. Zero values match all.
type ProfileFilter struct {
	Role           Role
	Search         string
	Specialization string
	Location       string
	VerifiedOnly   bool
	Limit          int
}

// ProfilePatch carries optional updates; nil fields are left untouched.
type ProfilePatch struct {
	FullName        *string
	Bio             *string
	Location        *string
	Specialization  *string
	Phone           *string
	Role            *Role
	IsVerified      *bool
	Tier            *Tier
	AILimitOverride *int
	ClearAILimit    bool
}
