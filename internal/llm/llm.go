package llm

import "context"

// Request 描述一次文本生成。MaxTokens 与 Temperature 为零时使用客户端默认值。
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Response 是大模型生成的文本。
type Response struct {
	Text  string
	Model string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
