package types

// ProxyContractName 代理自身操作（生命周期操作）的声明契约名
const ProxyContractName = "ServiceProxy"

// Contract 服务契约：声明契约名和一组可远程调用的操作
type Contract struct {
	Name       string
	Operations []string
}

// Has 判断操作是否属于契约
func (c Contract) Has(operation string) bool {
	for _, op := range c.Operations {
		if op == operation {
			return true
		}
	}
	return false
}

// Validate 验证契约能否构建出可调用的代理
func (c Contract) Validate() error {
	if c.Name == "" || c.Name == ProxyContractName {
		return ErrInvalidContract
	}
	if len(c.Operations) == 0 {
		return ErrEmptyContract
	}
	seen := make(map[string]struct{}, len(c.Operations))
	for _, op := range c.Operations {
		if err := ValidateOperationName(op); err != nil {
			return err
		}
		if _, dup := seen[op]; dup {
			return ErrInvalidContract
		}
		seen[op] = struct{}{}
	}
	return nil
}

// ServiceDescriptor 逻辑服务描述，每个逻辑服务创建一次
type ServiceDescriptor struct {
	Contract    Contract
	ServiceName string
	// DefaultValueOnError 为 true 时，通信失败返回结果类型的零值而不是错误
	DefaultValueOnError bool
}
