package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"mnemo/internal/domain"
	"mnemo/internal/llm"
)

const promptTemplate = `你是文档分析专家。请根据下面标记为“原文内容”的部分, 提取3-5个**关键词**, 并分别生成一段高质量的**中文摘要**。

要求如下：

- 内容需**忠实于原文，不要编造**
- 摘要为**一段连贯自然的话**, 讲述核心内容**不要用套话**, 不要重复文件名
- 参考文件名，但**不要仅凭文件名判断内容**
- **不要基于文件作者或机构介绍写摘要**（如公司历史、机构信息、埃森哲、麦肯锡）

---

现在内容如下：

文件名：%s

原文内容：▋
%s
▋

⚠️ 输出格式要求：
仅返回有效的 JSON 格式内容，格式如下：
{
"keywords": ["", "", ""],
"summary": ""
}

❌ 不要加入解释、markdown、标题
❌ 不要重复 instructions 中的内容
❌ 摘要中不要包含文件名或机构介绍`

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts llm.Options) (string, error)
}

// LLMConfig tunes the retry and validation thresholds of LLMSummarizer.
type LLMConfig struct {
	Model           string
	MaxRetries      int
	MinOutputChars  int
	MinSummaryChars int
}

// LLMSummarizer asks a language model for keywords and a summary in JSON.
type LLMSummarizer struct {
	gen Generator
	cfg LLMConfig
}

func NewLLMSummarizer(gen Generator, cfg LLMConfig) *LLMSummarizer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &LLMSummarizer{gen: gen, cfg: cfg}
}

// Model returns the model used for generation.
func (s *LLMSummarizer) Model() string { return s.cfg.Model }

// BuildPrompt renders the summarization prompt for a file and its blocks.
func BuildPrompt(fileName string, blocks []string) string {
	lines := make([]string, len(blocks))
	for i, b := range blocks {
		lines[i] = "- " + b
	}
	return fmt.Sprintf(promptTemplate, fileName, strings.Join(lines, "\n"))
}

// Summarize generates, retrying while the output is too short, and validates the result.
// Failures carry a domain.SkipReason.
func (s *LLMSummarizer) Summarize(ctx context.Context, fileName string, blocks []string) (domain.Summary, error) {
	prompt := BuildPrompt(fileName, blocks)

	var (
		output string
		err    error
	)
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		output, err = s.gen.Generate(ctx, s.cfg.Model, prompt, llm.DefaultOptions())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Summary{}, ctxErr
		}
		if err == nil && utf8.RuneCountInString(output) >= s.cfg.MinOutputChars {
			break
		}
		slog.Debug("llm output rejected, retrying", "file", fileName, "attempt", attempt+1, "chars", utf8.RuneCountInString(output), "error", err)
	}
	if err != nil {
		var se *llm.StatusError
		if errors.Is(err, domain.ErrLLMUnavailable) || errors.As(err, &se) {
			return domain.Summary{}, domain.Skip(domain.ReasonHTTPRequest, err)
		}
		return domain.Summary{}, domain.Skip(domain.ReasonUnknownOllama, err)
	}
	return ParseOutput(output, fileName, s.cfg.MinSummaryChars)
}

// ParseOutput extracts the first-to-last brace JSON object of output and validates it.
// The file name is removed from the summary.
func ParseOutput(output, fileName string, minSummaryChars int) (domain.Summary, error) {
	raw := jsonObject.FindString(output)
	if raw == "" {
		return domain.Summary{}, domain.Skip(domain.ReasonJSONParse, errors.New("no json object in output"))
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return domain.Summary{}, domain.Skip(domain.ReasonJSONParse, err)
	}
	var out domain.Summary
	rawSummary, ok := fields["summary"]
	if !ok {
		return domain.Summary{}, domain.Skip(domain.ReasonJSONParse, errors.New("missing summary"))
	}
	if err := json.Unmarshal(rawSummary, &out.Summary); err != nil {
		return domain.Summary{}, domain.Skip(domain.ReasonJSONParse, fmt.Errorf("summary: %w", err))
	}
	rawKeywords, ok := fields["keywords"]
	if !ok {
		return domain.Summary{}, domain.Skip(domain.ReasonJSONParse, errors.New("missing keywords"))
	}
	if err := json.Unmarshal(rawKeywords, &out.Keywords); err != nil {
		return domain.Summary{}, domain.Skip(domain.ReasonJSONParse, fmt.Errorf("keywords: %w", err))
	}

	out.Summary = strings.TrimSpace(out.Summary)
	if fileName != "" {
		out.Summary = strings.TrimSpace(strings.ReplaceAll(out.Summary, fileName, ""))
	}
	if utf8.RuneCountInString(out.Summary) < minSummaryChars || len(out.Keywords) < 1 {
		return domain.Summary{}, domain.Skip(domain.ReasonInvalidOutput, domain.ErrInvalidOutput)
	}
	return out, nil
}
