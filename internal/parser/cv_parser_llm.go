package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"hiring-go/internal/config"
	"hiring-go/internal/logger"
	"hiring-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// LLMCVParser 调用LLM将一批简历文本解析为结构化候选人信息。
// 一次请求解析整批简历，返回的JSON数组必须与输入一一对应。
type LLMCVParser struct {
	llmModel   model.ChatModel
	maxRetries int
	retryWait  time.Duration
	timeout    time.Duration
}

// NewLLMCVParser 创建LLM简历解析器
func NewLLMCVParser(llmModel model.ChatModel, cfg *config.CVParserConfig) (*LLMCVParser, error) {
	if llmModel == nil {
		return nil, fmt.Errorf("LLM模型不能为空")
	}

	maxRetries := 2
	retryWait := 3 * time.Second
	timeout := 120 * time.Second
	if cfg != nil {
		if cfg.MaxRetries > 0 {
			maxRetries = cfg.MaxRetries
		}
		if cfg.RetryWaitSeconds > 0 {
			retryWait = time.Duration(cfg.RetryWaitSeconds) * time.Second
		}
		timeout = config.GetDuration(cfg.ExtractionTimeout, timeout)
	}

	return &LLMCVParser{
		llmModel:   llmModel,
		maxRetries: maxRetries,
		retryWait:  retryWait,
		timeout:    timeout,
	}, nil
}

const cvParserSystemMessage = `你是一位资深的AI招聘助手，负责从简历文本中抽取结构化的候选人信息，并结合岗位要求给出匹配评估。
你必须只输出一个JSON数组，不要包含任何解释性文字或markdown代码块标记。
数组中每个元素对应输入中同一编号的简历，格式如下：
{
  "full_name": "候选人姓名",
  "email": "邮箱地址",
  "birthdate": "出生日期，格式YYYY-MM-DD，未知则省略",
  "gender": "性别，未知则省略",
  "position": "当前或目标职位",
  "experience": "工作经历的简要文字描述",
  "skills": ["技能1", "技能2"],
  "cv_summary": "简历内容摘要，100字以内",
  "fit_score": 85.0,
  "strengths": ["与岗位匹配的优势点"],
  "weaknesses": ["相对岗位要求的不足点"],
  "evaluation": "结合岗位要求的综合评价，100字以内"
}
规则：
1. 数组元素数量必须与输入简历数量完全一致，顺序一致。
2. 简历中找不到的字段省略，不要编造。
3. fit_score 为0-100的数字，仅在提供了岗位信息时给出；未提供岗位信息时省略 fit_score、strengths、weaknesses、evaluation。`

// buildUserPrompt 构造包含岗位上下文和编号简历的用户消息
func buildUserPrompt(texts []string, job *types.JobMatchContext) string {
	var sb strings.Builder

	if job != nil {
		sb.WriteString("【岗位信息】\n")
		sb.WriteString(fmt.Sprintf("职位: %s\n", job.Title))
		if job.Description != "" {
			sb.WriteString(fmt.Sprintf("描述: %s\n", job.Description))
		}
		if job.Requirements != "" {
			sb.WriteString(fmt.Sprintf("要求: %s\n", job.Requirements))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("【待解析简历，共%d份】\n", len(texts)))
	for i, text := range texts {
		sb.WriteString(fmt.Sprintf("\n===== 简历 %d =====\n", i+1))
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ParseBatch 解析一批简历文本。返回结果与输入一一对应；
// LLM返回的结果数量与输入不一致时整批失败。
func (p *LLMCVParser) ParseBatch(ctx context.Context, texts []string, job *types.JobMatchContext) ([]*types.ParsedResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := []*einoschema.Message{
		einoschema.SystemMessage(cvParserSystemMessage),
		einoschema.UserMessage(buildUserPrompt(texts, job)),
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("LLM简历解析失败，准备重试")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("LLM简历解析超时: %w", ctx.Err())
			case <-time.After(p.retryWait):
			}
		}

		results, err := p.parseOnce(ctx, messages, len(texts))
		if err == nil {
			return results, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("LLM简历解析在%d次尝试后仍然失败: %w", p.maxRetries+1, lastErr)
}

// parseOnce 单次LLM调用与解析
func (p *LLMCVParser) parseOnce(ctx context.Context, messages []*einoschema.Message, expected int) ([]*types.ParsedResult, error) {
	response, err := p.llmModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("LLM调用失败: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("LLM返回空响应")
	}

	// 去除BOM后提取JSON数组
	content := strings.TrimPrefix(response.Content, "\uFEFF")
	jsonStr := extractJSONArrayFromResponse(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("无法从LLM响应中提取JSON数组，响应内容: %s", content)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var results []*types.ParsedResult
	if err := json.Unmarshal([]byte(jsonStr), &results); err != nil {
		return nil, fmt.Errorf("反序列化LLM JSON响应失败: %w。JSON内容: %s", err, jsonStr)
	}

	if len(results) != expected {
		return nil, fmt.Errorf("LLM返回结果数量(%d)与输入简历数量(%d)不一致", len(results), expected)
	}

	for i, r := range results {
		if r == nil {
			return nil, fmt.Errorf("LLM返回的第%d个结果为空", i+1)
		}
		if err := validateParsedResult(r); err != nil {
			return nil, fmt.Errorf("LLM返回的第%d个结果不合法: %w", i+1, err)
		}
	}
	return results, nil
}

// validateParsedResult 验证单个解析结果
func validateParsedResult(r *types.ParsedResult) error {
	if r.FitScore != nil && (*r.FitScore < 0 || *r.FitScore > 100) {
		return fmt.Errorf("fit_score 必须在0-100之间，实际为 %v", *r.FitScore)
	}
	if r.Birthdate != "" {
		if _, err := time.Parse("2006-01-02", r.Birthdate); err != nil {
			return fmt.Errorf("birthdate 格式不合法: %s", r.Birthdate)
		}
	}
	return nil
}

// extractJSONArrayFromResponse 从文本中提取第一个完整的JSON数组
func extractJSONArrayFromResponse(text string) string {
	// 先去掉可能的markdown代码块围栏
	text = stripCodeFence(text)

	start := strings.Index(text, "[")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inStr {
				escaped = true
			}
		case '"':
			inStr = !inStr
		case '[':
			if !inStr {
				level++
			}
		case ']':
			if !inStr {
				level--
				if level == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// stripCodeFence 去掉```json ... ```形式的围栏
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}
