package models

// PlanType identifies a subscription plan
type PlanType string

// PlanType constants
const (
	PlanFree    PlanType = "free"
	PlanPro     PlanType = "pro"
	PlanCreator PlanType = "creator"
)

// FreeMinutesLimit is the monthly editing allowance of a new account
const FreeMinutesLimit = 20

// User represents an account of the simulated auth store
type User struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Plan         PlanType `json:"plan"`
	MinutesUsed  int      `json:"minutes_used"`
	MinutesLimit int      `json:"minutes_limit"`
	Username     string   `json:"username,omitempty"`
	Bio          string   `json:"bio,omitempty"`
	Avatar       string   `json:"avatar,omitempty"`
}

// UserPatch is a partial profile update
type UserPatch struct {
	Name     *string   `json:"name,omitempty"`
	Username *string   `json:"username,omitempty"`
	Bio      *string   `json:"bio,omitempty"`
	Avatar   *string   `json:"avatar,omitempty"`
	Plan     *PlanType `json:"plan,omitempty"`
}

// Apply merges the patch into u
func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Plan != nil {
		u.Plan = *p.Plan
	}
}
