package model

import "time"

// TokenKind matches the Type column of the tokens table.
type TokenKind int16

const (
	TokenAccess  TokenKind = 0
	TokenRefresh TokenKind = 1
)

func (k TokenKind) String() string {
	switch k {
	case TokenAccess:
		return "access"
	case TokenRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// PermissionLevel is the ordered tier carried by a user role.
type PermissionLevel int16

const (
	PermissionUser       PermissionLevel = 0
	PermissionSupervisor PermissionLevel = 1
	PermissionAdmin      PermissionLevel = 2
)

// ParsePermissionLevel maps a stored tier to a known level.
// Anything outside the known set collapses to PermissionUser.
func ParsePermissionLevel(v int16) PermissionLevel {
	switch PermissionLevel(v) {
	case PermissionSupervisor:
		return PermissionSupervisor
	case PermissionAdmin:
		return PermissionAdmin
	default:
		return PermissionUser
	}
}

func (l PermissionLevel) String() string {
	switch l {
	case PermissionSupervisor:
		return "Supervisor"
	case PermissionAdmin:
		return "Admin"
	default:
		return "User"
	}
}

// AccessTokenTTL is the fixed lifetime of access tokens.
const AccessTokenTTL = 3600 * time.Second

type Token struct {
	ID         string
	Digest     string
	Kind       TokenKind
	DeviceInfo string
	DateStart  time.Time
	DateEnd    time.Time
	OwnerID    string
}

// IssuedToken is a persisted token together with the bearer secret handed to the client.
type IssuedToken struct {
	Token
	Secret string
}

type UserRole struct {
	ID              string
	PermissionLevel PermissionLevel
	Role            string
	Description     *string
}

type User struct {
	ID          string
	Username    string
	Name        string
	Surname     string
	DateCreated time.Time
	Role        UserRole
}

type UserCredentials struct {
	ID       string
	Username string
	Password string
}

// Principal is the identity attached to an authorized request.
// Tier is only meaningful when TierResolved is set.
type Principal struct {
	UserID       string
	Username     string
	Tier         PermissionLevel
	TierResolved bool
	DeviceInfo   string
}

type UserLogin struct {
	Username   string `json:"Username"`
	Password   string `json:"Password"`
	Active     int64  `json:"Active"`
	DeviceInfo string `json:"DeviceInfo"`
}

type PasswordChange struct {
	Password string `json:"Password"`
}

type RoleChange struct {
	PermissionLevel *int16 `json:"PermissionLevel"`
}
