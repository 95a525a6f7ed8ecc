package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/ports"
)

const (
	summaryMaxTokens   = 800
	scoreMaxTokens     = 50
	scoreContentRunes  = 500
	neutralTemperature = 0.3
	alternateTemp      = 0.8
)

const (
	neutralSystemPrompt   = "你是一个专业的新闻摘要助手，擅长用简洁、客观的语言总结新闻要点。"
	alternateSystemPrompt = "你是聪明、幽默、有点毒舌的新闻评论员，擅长用俏皮、搞笑、略带吐槽的语气总结新闻。"
	scoreSystemPrompt     = "你是一个专业的新闻相关性评估助手，擅长评估新闻与主题的相关性。"
)

var scorePattern = regexp.MustCompile(`\d+(?:\.\d+)?|\.\d+`)

// Enricher turns a chat model into a summary and relevance backend.
type Enricher struct {
	chat ports.ChatClient
}

var _ ports.Enricher = (*Enricher)(nil)

// NewEnricher wraps a chat client.
func NewEnricher(chat ports.ChatClient) *Enricher {
	return &Enricher{chat: chat}
}

// Summarize asks for a one or two sentence summary in the requested tone.
func (e *Enricher) Summarize(ctx context.Context, title, content string, tone domain.Tone) (string, error) {
	system, user, temperature := neutralSystemPrompt, neutralPrompt(title, content), neutralTemperature
	if tone == domain.ToneAlternate {
		system, user, temperature = alternateSystemPrompt, alternatePrompt(title, content), alternateTemp
	}

	return e.chat.Complete(ctx, []ports.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, ports.ChatOptions{Temperature: temperature, MaxTokens: summaryMaxTokens})
}

// Score asks for a relevance number and clamps it into [0,1].
func (e *Enricher) Score(ctx context.Context, topic, title, content string) (float64, error) {
	reply, err := e.chat.Complete(ctx, []ports.ChatMessage{
		{Role: "system", Content: scoreSystemPrompt},
		{Role: "user", Content: scorePrompt(topic, title, domain.TruncateRunes(content, scoreContentRunes))},
	}, ports.ChatOptions{Temperature: neutralTemperature, MaxTokens: scoreMaxTokens})
	if err != nil {
		return 0, err
	}
	return ParseScore(reply)
}

// ParseScore extracts the first number in reply, clamped to [0,1].
func ParseScore(reply string) (float64, error) {
	match := scorePattern.FindString(reply)
	if match == "" {
		return 0, fmt.Errorf("no score in reply %q", reply)
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", match, err)
	}
	return domain.ClampScore(value), nil
}

func neutralPrompt(title, content string) string {
	return fmt.Sprintf(`新闻标题：%s

新闻内容：%s

请用1-2句话总结这条新闻的核心内容，要求：
1. 客观中性，不带个人情感
2. 准确提炼关键信息
3. 语言简洁专业
4. 不超过50字`, title, content)
}

func alternatePrompt(title, content string) string {
	return fmt.Sprintf(`新闻标题：%s

新闻内容：%s

请用1-2句话总结这条新闻，要求：
1. 语气幽默、俏皮，可以适当调侃
2. 抓住新闻核心要点
3. 加入一些网络流行语或段子风格
4. 保持简洁，不超过60字`, title, content)
}

func scorePrompt(topic, title, content string) string {
	return fmt.Sprintf(`主题：%s

新闻标题：%s

新闻内容：%s

请评估这条新闻与主题"%s"的相关性，给出0-1之间的分数：
- 0.9-1.0: 高度相关，核心内容完全匹配主题
- 0.7-0.9: 较为相关，主要内容与主题相关
- 0.5-0.7: 中等相关，部分内容与主题相关
- 0.3-0.5: 低相关性，只有少量内容与主题相关
- 0.0-0.3: 几乎不相关

请只返回一个0-1之间的数字，例如：0.85`, topic, title, content, topic)
}
