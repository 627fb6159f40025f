package router

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"hiring-go/internal/api/handler"
	"hiring-go/internal/config"
	"hiring-go/internal/logger"
	"hiring-go/internal/processor"
	"hiring-go/internal/tracing"
	"hiring-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/google/uuid"
	"github.com/hertz-contrib/keyauth"
	"go.opentelemetry.io/otel/trace"
)

// Handlers 路由依赖的全部处理器
type Handlers struct {
	CV        *handler.CVHandler
	Candidate *handler.CandidateHandler
	Job       *handler.JobHandler
	Stage     *handler.StageHandler
	Pipeline  *handler.PipelineHandler
	Activity  *handler.ActivityHandler
}

// RegisterRoutes 注册API路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config, handlers Handlers) {
	h.Use(requestIDMiddleware())

	api := h.Group("/api/v1")
	if cfg.Auth.Enabled {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:X-API-Key", ""),
			keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
				return key == cfg.Auth.APIKey, nil
			}),
		))
	}

	registerCVRoutes(api, handlers.CV)
	registerCandidateRoutes(api, handlers.Candidate)
	registerJobRoutes(api, handlers.Job)
	registerStageRoutes(api, handlers.Stage, handlers.Pipeline)
	registerActivityRoutes(api, handlers.Activity)

	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

// requestIDMiddleware 为每个请求生成关联ID，并把带关联ID的日志记录器放入上下文
func requestIDMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		requestID := string(ctx.GetHeader("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Header("X-Request-ID", requestID)

		reqLogger := logger.Logger.With().
			Str("request_id", requestID).
			Str("path", string(ctx.Path())).
			Logger()
		ctx.Next(reqLogger.WithContext(c))
	}
}

// respondError 将业务错误翻译为HTTP状态码和 {error, code} 响应体
func respondError(c context.Context, ctx *app.RequestContext, err error) {
	status := processor.HTTPStatus(err)
	code := processor.CodeOf(err)
	tracing.RecordHTTPError(trace.SpanFromContext(c), err, status)
	if status >= http.StatusInternalServerError {
		logger.Ctx(c).Error().Err(err).Str("code", code).Msg("请求处理失败")
	} else {
		logger.Ctx(c).Warn().Err(err).Str("code", code).Msg("请求被拒绝")
	}
	ctx.JSON(status, utils.H{"error": err.Error(), "code": code})
}

func registerCVRoutes(api *route.RouterGroup, cvHandler *handler.CVHandler) {
	api.POST("/cv/upload", func(c context.Context, ctx *app.RequestContext) {
		form, err := ctx.MultipartForm()
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "解析multipart表单失败", "code": processor.CodeValidation})
			return
		}
		fileHeaders := form.File["files"]
		if len(fileHeaders) == 0 {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "至少需要上传一个文件", "code": processor.CodeValidation})
			return
		}

		jobID := ctx.PostForm("job_id")

		files := make([]handler.UploadedFile, 0, len(fileHeaders))
		for _, fh := range fileHeaders {
			file, err := fh.Open()
			if err != nil {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": "打开文件失败: " + fh.Filename, "code": processor.CodeValidation})
				return
			}
			content, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": "读取文件失败: " + fh.Filename, "code": processor.CodeValidation})
				return
			}
			files = append(files, handler.UploadedFile{
				FileName:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Content:     content,
			})
		}

		resp, err := cvHandler.HandleCVUpload(c, jobID, files)
		if err != nil {
			// 解析失败时响应体仍携带已完成的重复判定
			if resp != nil {
				ctx.JSON(processor.HTTPStatus(err), utils.H{
					"error":      err.Error(),
					"code":       processor.CodeOf(err),
					"duplicates": resp.Duplicates,
					"summary":    resp.Summary,
				})
				return
			}
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/cv/process", func(c context.Context, ctx *app.RequestContext) {
		var req types.ProcessRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的JSON", "code": processor.CodeValidation})
			return
		}
		resp, err := cvHandler.HandleCVProcess(c, req)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})
}

func registerCandidateRoutes(api *route.RouterGroup, candidateHandler *handler.CandidateHandler) {
	api.GET("/candidates", func(c context.Context, ctx *app.RequestContext) {
		query := handler.CandidateListQuery{
			JobID:   ctx.Query("job_id"),
			StageID: ctx.Query("stage_id"),
			Status:  ctx.Query("status"),
			Limit:   atoiOrZero(ctx.Query("limit")),
			Offset:  atoiOrZero(ctx.Query("offset")),
		}
		resp, err := candidateHandler.HandleListCandidates(c, query)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/candidates/:id", func(c context.Context, ctx *app.RequestContext) {
		resp, err := candidateHandler.HandleGetCandidate(c, ctx.Param("id"))
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.PUT("/candidates/:id", func(c context.Context, ctx *app.RequestContext) {
		var req handler.CandidateUpdateRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的JSON", "code": processor.CodeValidation})
			return
		}
		resp, err := candidateHandler.HandleUpdateCandidate(c, ctx.Param("id"), req)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.DELETE("/candidates/:id", func(c context.Context, ctx *app.RequestContext) {
		if err := candidateHandler.HandleDeleteCandidate(c, ctx.Param("id")); err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"deleted": ctx.Param("id")})
	})
}

func registerJobRoutes(api *route.RouterGroup, jobHandler *handler.JobHandler) {
	api.GET("/jobs", func(c context.Context, ctx *app.RequestContext) {
		resp, err := jobHandler.HandleListJobs(c, ctx.Query("status"))
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"jobs": resp})
	})

	api.GET("/jobs/:id", func(c context.Context, ctx *app.RequestContext) {
		resp, err := jobHandler.HandleGetJob(c, ctx.Param("id"))
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/jobs", func(c context.Context, ctx *app.RequestContext) {
		var req handler.JobRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的JSON", "code": processor.CodeValidation})
			return
		}
		resp, err := jobHandler.HandleCreateJob(c, req)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.PUT("/jobs/:id", func(c context.Context, ctx *app.RequestContext) {
		var req handler.JobRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的JSON", "code": processor.CodeValidation})
			return
		}
		resp, err := jobHandler.HandleUpdateJob(c, ctx.Param("id"), req)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.DELETE("/jobs/:id", func(c context.Context, ctx *app.RequestContext) {
		if err := jobHandler.HandleDeleteJob(c, ctx.Param("id")); err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"deleted": ctx.Param("id")})
	})
}

func registerStageRoutes(api *route.RouterGroup, stageHandler *handler.StageHandler, pipelineHandler *handler.PipelineHandler) {
	api.GET("/stages", func(c context.Context, ctx *app.RequestContext) {
		resp, err := stageHandler.HandleListStages(c, ctx.Query("pipeline_id"))
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"stages": resp})
	})

	api.POST("/stages", func(c context.Context, ctx *app.RequestContext) {
		var req handler.StageRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的JSON", "code": processor.CodeValidation})
			return
		}
		resp, err := stageHandler.HandleCreateStage(c, req)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.PUT("/stages/:id", func(c context.Context, ctx *app.RequestContext) {
		var req handler.StageRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的JSON", "code": processor.CodeValidation})
			return
		}
		resp, err := stageHandler.HandleUpdateStage(c, ctx.Param("id"), req)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.DELETE("/stages/:id", func(c context.Context, ctx *app.RequestContext) {
		if err := stageHandler.HandleDeleteStage(c, ctx.Param("id")); err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"deleted": ctx.Param("id")})
	})

	api.GET("/pipelines", func(c context.Context, ctx *app.RequestContext) {
		resp, err := pipelineHandler.HandleListPipelines(c)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"pipelines": resp})
	})

	api.POST("/pipelines", func(c context.Context, ctx *app.RequestContext) {
		var req handler.PipelineRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的JSON", "code": processor.CodeValidation})
			return
		}
		resp, err := pipelineHandler.HandleCreatePipeline(c, req)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})
}

func registerActivityRoutes(api *route.RouterGroup, activityHandler *handler.ActivityHandler) {
	api.POST("/activities", func(c context.Context, ctx *app.RequestContext) {
		var req handler.ActivityRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的JSON", "code": processor.CodeValidation})
			return
		}
		resp, err := activityHandler.HandleCreateActivity(c, req)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.PUT("/activities/:id", func(c context.Context, ctx *app.RequestContext) {
		var req handler.ActivityRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的JSON", "code": processor.CodeValidation})
			return
		}
		resp, err := activityHandler.HandleUpdateActivity(c, ctx.Param("id"), req)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/interviews", func(c context.Context, ctx *app.RequestContext) {
		var req handler.InterviewRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的JSON", "code": processor.CodeValidation})
			return
		}
		resp, err := activityHandler.HandleCreateInterview(c, req)
		if err != nil {
			respondError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})
}

// atoiOrZero 宽松解析整数查询参数，非法值按0处理
func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
