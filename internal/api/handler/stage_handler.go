package handler

import (
	"context"
	"fmt"
	"strings"

	"hiring-go/internal/logger"
	"hiring-go/internal/processor"
	"hiring-go/internal/storage"
	"hiring-go/internal/storage/models"
	"hiring-go/internal/types"

	"github.com/gofrs/uuid/v5"
)

// StageCache 默认阶段缓存的维护入口，阶段管理侧负责写入与失效
type StageCache interface {
	SetDefaultStageID(ctx context.Context, stageID string) error
	InvalidateDefaultStageID(ctx context.Context) error
}

// StageHandler 招聘阶段管理的HTTP处理器。
// 阶段的增删改通过NotificationSink对外发布事件。
type StageHandler struct {
	db         *storage.MySQL
	sink       storage.NotificationSink // 可为nil，此时不发布事件
	cache      StageCache               // 可为nil，此时不维护默认阶段缓存
	routingKey string
}

// NewStageHandler 创建阶段处理器
func NewStageHandler(db *storage.MySQL, sink storage.NotificationSink, cache StageCache, routingKey string) (*StageHandler, error) {
	if db == nil {
		return nil, fmt.Errorf("数据库连接不能为空")
	}
	if routingKey == "" {
		routingKey = "hiring.stage"
	}
	return &StageHandler{db: db, sink: sink, cache: cache, routingKey: routingKey}, nil
}

// StageRequest 阶段创建与更新请求
type StageRequest struct {
	Name             string                 `json:"name"`
	HiringPipelineID *string                `json:"hiring_pipeline_id,omitempty"`
	IsDefault        bool                   `json:"is_default,omitempty"`
	Settings         map[string]interface{} `json:"settings,omitempty"`
}

// HandleListStages 查询阶段列表，按settings.order排序，未设权重的按创建时间兜底
func (h *StageHandler) HandleListStages(ctx context.Context, pipelineID string) ([]models.Stage, error) {
	stages, err := h.db.ListStagesOrdered(ctx, pipelineID)
	if err != nil {
		return nil, processor.NewTransactionError("list_stages", err.Error())
	}
	return stages, nil
}

// HandleCreateStage 创建阶段。默认阶段全局至多一个，且不属于任何流水线。
func (h *StageHandler) HandleCreateStage(ctx context.Context, req StageRequest) (*models.Stage, error) {
	if req.Name == "" {
		return nil, processor.NewValidationError("create_stage", "name 不能为空")
	}
	if req.IsDefault {
		if req.HiringPipelineID != nil {
			return nil, processor.NewValidationError("create_stage", "默认阶段不能关联流水线")
		}
		existing, err := h.db.GetDefaultStage(ctx)
		if err != nil {
			return nil, processor.NewTransactionError("create_stage", err.Error())
		}
		if existing != nil {
			return nil, processor.NewConflictError("create_stage",
				fmt.Sprintf("默认阶段已存在: %s", existing.StageID))
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, processor.NewTransactionError("create_stage", err.Error())
	}
	stage := &models.Stage{
		StageID:          id.String(),
		Name:             req.Name,
		HiringPipelineID: req.HiringPipelineID,
		IsDefault:        req.IsDefault,
	}
	if req.Settings != nil {
		settings, err := models.MapToJSON(req.Settings)
		if err != nil {
			return nil, processor.NewValidationError("create_stage", "settings 不是合法的JSON对象")
		}
		stage.Settings = settings
	}

	if err := h.db.CreateStage(ctx, stage); err != nil {
		return nil, processor.NewTransactionError("create_stage", err.Error())
	}

	if stage.IsDefault {
		h.cacheDefaultStage(ctx, stage.StageID)
	}
	h.publishStageEvent(ctx, types.StageEventCreated, stage)
	return stage, nil
}

// HandleUpdateStage 更新阶段
func (h *StageHandler) HandleUpdateStage(ctx context.Context, stageID string, req StageRequest) (*models.Stage, error) {
	if stageID == "" {
		return nil, processor.NewValidationError("update_stage", "stage_id 不能为空")
	}
	existing, err := h.db.GetStageByID(ctx, stageID)
	if err != nil {
		return nil, processor.NewTransactionError("update_stage", err.Error())
	}
	if existing == nil {
		return nil, processor.NewNotFoundError("update_stage", fmt.Sprintf("阶段 %s 不存在", stageID))
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.HiringPipelineID != nil {
		if existing.IsDefault {
			return nil, processor.NewValidationError("update_stage", "默认阶段不能关联流水线")
		}
		updates["hiring_pipeline_id"] = *req.HiringPipelineID
	}
	if req.Settings != nil {
		settings, err := models.MapToJSON(req.Settings)
		if err != nil {
			return nil, processor.NewValidationError("update_stage", "settings 不是合法的JSON对象")
		}
		updates["settings"] = settings
	}
	if err := h.db.UpdateStage(ctx, stageID, updates); err != nil {
		return nil, processor.NewTransactionError("update_stage", err.Error())
	}

	updated, err := h.db.GetStageByID(ctx, stageID)
	if err != nil || updated == nil {
		return nil, processor.NewTransactionError("update_stage", "读取更新后的阶段失败")
	}
	if updated.IsDefault {
		h.invalidateDefaultStageCache(ctx)
	}
	h.publishStageEvent(ctx, types.StageEventUpdated, updated)
	return updated, nil
}

// HandleDeleteStage 删除阶段。默认阶段受保护不可删除，
// 处于被删阶段的候选人回落到无阶段状态。
func (h *StageHandler) HandleDeleteStage(ctx context.Context, stageID string) error {
	if stageID == "" {
		return processor.NewValidationError("delete_stage", "stage_id 不能为空")
	}
	existing, err := h.db.GetStageByID(ctx, stageID)
	if err != nil {
		return processor.NewTransactionError("delete_stage", err.Error())
	}
	if existing == nil {
		return processor.NewNotFoundError("delete_stage", fmt.Sprintf("阶段 %s 不存在", stageID))
	}
	if existing.IsDefault {
		return processor.NewValidationError("delete_stage", "默认阶段不可删除")
	}

	if err := h.db.DeleteStage(ctx, stageID); err != nil {
		return processor.NewTransactionError("delete_stage", err.Error())
	}
	h.publishStageEvent(ctx, types.StageEventDeleted, existing)
	return nil
}

// publishStageEvent 发布阶段事件，失败只记录警告
func (h *StageHandler) publishStageEvent(ctx context.Context, kind types.StageEventKind, stage *models.Stage) {
	if h.sink == nil {
		return
	}
	event := storage.NewStageEvent(kind, stage.StageID, stage.Name, stage.IsDefault)
	routingKey := h.routingKey + strings.TrimPrefix(string(kind), "stage")
	if err := h.sink.PublishEvent(ctx, routingKey, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("stage_id", stage.StageID).Msg("发布阶段事件失败")
	}
}

// cacheDefaultStage 刷新默认阶段缓存，失败只记录警告
func (h *StageHandler) cacheDefaultStage(ctx context.Context, stageID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.SetDefaultStageID(ctx, stageID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("写入默认阶段缓存失败")
	}
}

// invalidateDefaultStageCache 默认阶段变更后使缓存失效，失败只记录警告
func (h *StageHandler) invalidateDefaultStageCache(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateDefaultStageID(ctx); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("失效默认阶段缓存失败")
	}
}
