package model

import "strings"

// Role 用户角色,由身份服务提供,本服务只读
type Role string

const (
	RoleAnnotator Role = "Annotator"
	RoleReviewer  Role = "Reviewer"
	RoleAdmin     Role = "Admin"
)

// ParseRole 解析角色字符串,大小写不敏感
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "annotator":
		return RoleAnnotator, true
	case "reviewer":
		return RoleReviewer, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}

// Actor 调用方身份
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

// Is 判断角色是否在给定集合中
func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
