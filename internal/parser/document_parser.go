package parser

import (
	"context"
	"fmt"

	"hiring-go/internal/processor"
	"hiring-go/internal/tracing"
	"hiring-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var documentTracer = otel.Tracer("hiring-go/parser/document")

// CVDocumentParser 组合PDF文本提取和LLM结构化抽取，
// 实现 processor.DocumentParser 接口。
type CVDocumentParser struct {
	extractor *EinoPDFTextExtractor
	llm       *LLMCVParser
}

// NewCVDocumentParser 创建简历文档解析器
func NewCVDocumentParser(extractor *EinoPDFTextExtractor, llm *LLMCVParser) (*CVDocumentParser, error) {
	if extractor == nil {
		return nil, fmt.Errorf("PDF提取器不能为空")
	}
	if llm == nil {
		return nil, fmt.Errorf("LLM解析器不能为空")
	}
	return &CVDocumentParser{extractor: extractor, llm: llm}, nil
}

// ParseFiles 解析一批简历文件。任一文件文本提取失败或LLM结果数量
// 不匹配都视为整批失败，调用方不应提交任何部分结果。
func (p *CVDocumentParser) ParseFiles(ctx context.Context, files []processor.FileInput, job *types.JobMatchContext) ([]*types.ParsedResult, error) {
	if len(files) == 0 {
		return nil, nil
	}

	ctx, span := documentTracer.Start(ctx, "CVDocumentParser.ParseFiles")
	defer span.End()
	span.SetAttributes(attribute.Int("parse.file_count", len(files)))

	texts := make([]string, len(files))
	for i, f := range files {
		text, err := p.extractor.ExtractTextFromBytes(ctx, f.Content, f.FileName)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeExternal)
			return nil, fmt.Errorf("提取文件 %s 文本失败: %w", f.FileName, err)
		}
		texts[i] = text
	}
	span.SetAttributes(attribute.String("parse.text_preview", tracing.SafeCVContent(texts[0])))

	return p.llm.ParseBatch(ctx, texts, job)
}

var _ processor.DocumentParser = (*CVDocumentParser)(nil)
