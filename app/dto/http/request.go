package http

// LoginRequest is bound from the query string, a form or a JSON body.
type LoginRequest struct {
	Username string `json:"username" form:"username" query:"username"`
	Email    string `json:"email" form:"email" query:"email"`
	Password string `json:"password" form:"password" query:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken      string `json:"refreshToken" form:"refreshToken"`
	RefreshTokenSnake string `json:"refresh_token" form:"refresh_token"`
}

type AccessTokenRequest struct {
	AccessToken string `json:"accessToken" form:"accessToken"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" form:"old_password"`
	NewPassword string `json:"new_password" form:"new_password"`
}

type UpdateAccountRequest struct {
	FullName string `json:"fullname" form:"fullname"`
	Email    string `json:"email" form:"email"`
}
