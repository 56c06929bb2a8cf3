package types

import "strconv"

// RemoteLocation 远程进程位置，代理构建后不可变
type RemoteLocation struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Validate 验证位置
func (l RemoteLocation) Validate() error {
	if err := ValidateHost(l.Host); err != nil {
		return err
	}
	return ValidatePort(l.Port)
}

// String 返回 host:port
func (l RemoteLocation) String() string {
	return l.Host + ":" + strconv.Itoa(l.Port)
}
