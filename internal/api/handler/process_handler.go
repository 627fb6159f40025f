package handler

import (
	"context"

	"hiring-go/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

// HandleCVProcess 执行一批重复简历的处置。
// 仅顶层校验失败返回错误，条目级失败体现在响应的errors集合中。
func (h *CVHandler) HandleCVProcess(ctx context.Context, req types.ProcessRequest) (*types.ProcessResponse, error) {
	ctx, span := cvHandlerTracer.Start(ctx, "CVHandler.HandleCVProcess")
	defer span.End()
	span.SetAttributes(
		attribute.String("reconcile.mode", string(req.Mode)),
		attribute.Int("reconcile.batch_size", len(req.Duplicates)),
	)

	return h.reconciler.ProcessBatch(ctx, req)
}
