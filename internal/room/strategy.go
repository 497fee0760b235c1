package room

import (
	"context"
	"strings"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/llm"
)

// StrategySystemPrompt 把用户的交易想法整理为带风控约束的结构化策略。
const StrategySystemPrompt = `You are a trading strategy expert. Transform the user's trading idea into a clear, structured strategy.

Your response should include:
1. Strategy overview (2-3 sentences)
2. Entry conditions
3. Exit conditions
4. Risk management rules

Keep it concise and actionable. Automatically include these guardrails:
- Maximum 5% portfolio risk per trade
- Stop loss required on all positions
- No trading on low liquidity tokens (<$100k daily volume)`

const (
	strategyMaxTokens   = 500
	strategyTemperature = 0.7
)

// StrategyGenerator 调用大模型生成房间策略。
type StrategyGenerator struct {
	client llm.Client
}

// NewStrategyGenerator 创建 StrategyGenerator。
func NewStrategyGenerator(client llm.Client) *StrategyGenerator {
	return &StrategyGenerator{client: client}
}

// Generate 返回去除首尾空白的策略文本。
func (g *StrategyGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "text generation client is not configured")
	}
	resp, err := g.client.Generate(ctx, llm.Request{
		System:      StrategySystemPrompt,
		User:        prompt,
		MaxTokens:   strategyMaxTokens,
		Temperature: strategyTemperature,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", xerrors.New(xerrors.CodeUpstreamUnavailable, "text generation returned empty content")
	}
	return text, nil
}
