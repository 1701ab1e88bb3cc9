package model

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AuthLogoutResponse struct {
	Status  string `json:"status"`
	Revoked int64  `json:"revoked"`
}

type AuthMeResponse struct {
	AccountID   string   `json:"accountId"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Kind        string   `json:"kind"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}
