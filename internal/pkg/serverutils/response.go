package serverutils

type Response[T any] struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func SuccessResponse[T any](message string, data T) *Response[T] {
	return &Response[T]{
		Success: true,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

// StatusResponse is a success envelope with a non-200 code (201, 202)
func StatusResponse[T any](code int, message string, data T) *Response[T] {
	return &Response[T]{
		Success: code < 400,
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string) *Response[any] {
	return &Response[any]{
		Success: false,
		Code:    code,
		Message: message,
	}
}
