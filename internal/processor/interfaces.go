package processor

import (
	"context"

	"hiring-go/internal/types"
)

// DocumentParser 简历文档解析接口：提取文本并由LLM抽取结构化信息。
// 返回结果必须与输入文件一一对应，数量不一致视为整批失败。
type DocumentParser interface {
	ParseFiles(ctx context.Context, files []FileInput, job *types.JobMatchContext) ([]*types.ParsedResult, error)
}

// FileInput 待解析的单个文件
type FileInput struct {
	FileName string
	Content  []byte
}

// StageCache 默认阶段ID的快速缓存。读写失败只降级回源数据库，
// 缓存失效由阶段管理侧负责。
type StageCache interface {
	GetDefaultStageID(ctx context.Context) (string, error)
	SetDefaultStageID(ctx context.Context, stageID string) error
}
