// Package execctx 标识调用所在的执行上下文。
//
// 调用方的执行上下文以 Token 的形式放在 context.Context 中传递，
// Detector 把它与登记的特权上下文 Token 比较，从而区分特权上下文（UI/事件循环）
// 和普通工作上下文，不依赖任何全局线程状态。
package execctx

import (
	"context"

	"github.com/google/uuid"

	"remoting/internal/types"
)

// Token 执行上下文标识，零值表示未标识的普通上下文
type Token struct {
	id uuid.UUID
}

// NewToken 创建新的执行上下文标识
func NewToken() Token {
	return Token{id: uuid.New()}
}

// IsZero 是否为零值
func (t Token) IsZero() bool {
	return t.id == uuid.Nil
}

func (t Token) String() string {
	return t.id.String()
}

type tokenKey struct{}

// WithToken 把执行上下文标识放入 ctx
func WithToken(ctx context.Context, tok Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// TokenFrom 取出 ctx 中的执行上下文标识
func TokenFrom(ctx context.Context) (Token, bool) {
	tok, ok := ctx.Value(tokenKey{}).(Token)
	return tok, ok && !tok.IsZero()
}

// Detach 返回标记为普通上下文的 ctx，保留取消和截止时间
func Detach(ctx context.Context) context.Context {
	if _, ok := TokenFrom(ctx); !ok {
		return ctx
	}
	return WithToken(ctx, Token{})
}

// Detector 根据登记的特权上下文标识对调用方分类
type Detector struct {
	privileged Token
}

// NewDetector 创建检测器，privileged 为零值时所有调用都视为普通上下文
func NewDetector(privileged Token) *Detector {
	return &Detector{privileged: privileged}
}

// Classify 判断 ctx 所属的执行上下文
func (d *Detector) Classify(ctx context.Context) types.ExecutionContext {
	if d == nil || d.privileged.IsZero() {
		return types.Ordinary
	}
	if tok, ok := TokenFrom(ctx); ok && tok == d.privileged {
		return types.Privileged
	}
	return types.Ordinary
}

// IsPrivileged 是否特权上下文
func (d *Detector) IsPrivileged(ctx context.Context) bool {
	return d.Classify(ctx) == types.Privileged
}
