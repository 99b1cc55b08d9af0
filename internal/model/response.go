package model

type ErrorResponse struct {
	Code    ErrorCode `json:"Code"`
	Message string    `json:"Message"`
}

type TokenOnly struct {
	Token string `json:"Token"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type MeResponse struct {
	UserID          string `json:"UserId"`
	Username        string `json:"Username"`
	PermissionLevel string `json:"PermissionLevel"`
	DeviceInfo      string `json:"DeviceInfo"`
}

type RoleResponse struct {
	ID              string  `json:"UserRoleId"`
	PermissionLevel int16   `json:"PermissionLevel"`
	Role            string  `json:"Role"`
	Description     *string `json:"Description"`
}
