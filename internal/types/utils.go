package types

import "strings"

// ValidateServiceName 验证服务名称
// 服务名直接拼接进地址，不做 URL 编码，因此只允许地址安全字符
func ValidateServiceName(name string) error {
	if name == "" {
		return ErrInvalidService
	}
	// 服务名必须是字母、数字、点号、下划线或短横线
	for _, ch := range name {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '.' || ch == '_' || ch == '-') {
			return ErrInvalidService
		}
	}
	return nil
}

// ValidateOperationName 验证操作名称
func ValidateOperationName(name string) error {
	if name == "" {
		return ErrInvalidMethod
	}
	// 操作名必须是字母、数字或下划线
	for _, ch := range name {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '_') {
			return ErrInvalidMethod
		}
	}
	return nil
}

// ValidateHost 验证主机地址，接受 IPv4 或主机名
// 主机同样原样拼接进地址，端口、路径、空白和 IPv6 字面量都会使地址失效
func ValidateHost(host string) error {
	if host == "" || strings.ContainsAny(host, " \t\r\n/?#@:[]") {
		return ErrInvalidHost
	}
	return nil
}

// ValidatePort 验证端口
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return ErrInvalidPort
	}
	return nil
}
