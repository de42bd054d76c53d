package http

import "github.com/vibast-solutions/ms-go-accounts/app/apperr"

// APIResponse is the envelope of every successful response.
type APIResponse struct {
	StatusCode int    `json:"status_code"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func NewAPIResponse(statusCode int, data any, message string) APIResponse {
	return APIResponse{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
		Success:    statusCode < 400,
	}
}

type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Success    bool   `json:"success"`
	Detail     string `json:"detail,omitempty"`
}

// NewErrorResponse renders err by its kind. Detail carries the underlying
// cause and is only filled when withDetail is set.
func NewErrorResponse(err error, withDetail bool) ErrorResponse {
	appErr := apperr.From(err)

	resp := ErrorResponse{
		StatusCode: appErr.StatusCode(),
		Error:      appErr.Message,
	}
	if withDetail {
		if detail := err.Error(); detail != appErr.Message {
			resp.Detail = detail
		}
	}
	return resp
}
