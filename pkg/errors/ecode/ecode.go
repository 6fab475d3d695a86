package ecode

// 错误码，0 表示成功
const (
	Success        = 0
	Unknown        = 10000
	ValidateErr    = 10001
	NotFoundErr    = 10002
	RequireAuthErr = 10003
	ConflictErr    = 10004
	HITLRequired   = 10005
	TooManyRequest = 10006
)

var messages = map[int]string{
	Success:        "success",
	Unknown:        "unknown error",
	ValidateErr:    "invalid parameters",
	NotFoundErr:    "resource not found",
	RequireAuthErr: "authorization required",
	ConflictErr:    "state conflict",
	HITLRequired:   "manual approval required",
	TooManyRequest: "too many requests",
}

// Message 返回错误码的默认描述
func Message(code int) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return messages[Unknown]
}
