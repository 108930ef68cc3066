package enums

import "fmt"

// UserRole represents an account tier.
type UserRole string

const (
	UserRoleStandard           UserRole = "standard"
	UserRoleDistributor        UserRole = "distributor"
	UserRoleDistributorPremium UserRole = "distributor_premium"
	UserRoleProvider           UserRole = "provider"
	UserRoleProviderPremium    UserRole = "provider_premium"
	UserRoleAdmin              UserRole = "admin"
	UserRolePending            UserRole = "pending"
)

var validUserRoles = []UserRole{
	UserRoleStandard,
	UserRoleDistributor,
	UserRoleDistributorPremium,
	UserRoleProvider,
	UserRoleProviderPremium,
	UserRoleAdmin,
	UserRolePending,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsPremium reports whether the role carries a premium period.
func (r UserRole) IsPremium() bool {
	return r == UserRoleDistributorPremium || r == UserRoleProviderPremium
}

// IsProviderTier reports whether the role can list products and own stock.
func (r UserRole) IsProviderTier() bool {
	return r == UserRoleProvider || r == UserRoleProviderPremium
}

// Demoted returns the role an expired premium account falls back to.
func (r UserRole) Demoted() UserRole {
	switch r {
	case UserRoleProviderPremium:
		return UserRoleProvider
	case UserRoleDistributorPremium:
		return UserRoleDistributor
	default:
		return UserRoleStandard
	}
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
