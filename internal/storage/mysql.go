package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"hiring-go/internal/config"
	"hiring-go/internal/storage/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("hiring-go/storage/mysql")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

type gormSpanKey struct{}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		if sqlStatement := db.Statement.SQL.String(); sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", sqlStatement),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, gormSpanKey{}, span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		disableErrSkip: true,
	}
}

// MySQL 提供招聘业务的关系数据库功能
type MySQL struct {
	db *gorm.DB
}

// NewMySQL 创建MySQL客户端，完成连接池设置、追踪插件注册和表结构迁移
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	// 注册OpenTelemetry追踪插件
	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	m := &MySQL{db: db}
	if err := m.autoMigrateSchema(); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	return m, nil
}

// NewMySQLWithDB 使用已有GORM连接构造MySQL客户端，测试中配合SQLite内存库使用
func NewMySQLWithDB(db *gorm.DB) (*MySQL, error) {
	if db == nil {
		return nil, fmt.Errorf("数据库连接不能为空")
	}
	m := &MySQL{db: db}
	if err := m.autoMigrateSchema(); err != nil {
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	// 迁移期间关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.Job{},
		&models.HiringPipeline{},
		&models.Stage{},
		&models.Candidate{},
		&models.CVUpload{},
		&models.CandidateActivity{},
		&models.Interview{},
	)

	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// FindCVUploadByHash 按指纹查找上传记录。jobID为nil时匹配未关联岗位的记录，
// 否则匹配同一岗位的记录。未命中返回 (nil, nil)。
func (m *MySQL) FindCVUploadByHash(ctx context.Context, fileHash string, jobID *string) (*models.CVUpload, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.FindCVUploadByHash", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("cv.file_hash", fileHash))

	query := m.db.WithContext(ctx).Where("file_hash = ?", fileHash)
	if jobID == nil {
		query = query.Where("job_id IS NULL")
	} else {
		query = query.Where("job_id = ?", *jobID)
	}

	var upload models.CVUpload
	err := query.Order("created_at DESC").First(&upload).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Ok, "not found")
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("查询简历指纹记录失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return &upload, nil
}

// FindCandidateByEmail 按邮箱查找同岗位范围内的候选人。未命中返回 (nil, nil)。
func (m *MySQL) FindCandidateByEmail(ctx context.Context, email string, jobID *string) (*models.Candidate, error) {
	if email == "" {
		return nil, nil
	}

	ctx, span := mysqlTracer.Start(ctx, "MySQL.FindCandidateByEmail", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	query := m.db.WithContext(ctx).Where("email = ?", email)
	if jobID == nil {
		query = query.Where("job_id IS NULL")
	} else {
		query = query.Where("job_id = ?", *jobID)
	}

	var candidate models.Candidate
	err := query.Order("created_at DESC").First(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Ok, "not found")
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("按邮箱查询候选人失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return &candidate, nil
}

// GetCandidateByID 按ID获取候选人。未命中返回 (nil, nil)。
func (m *MySQL) GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error) {
	var candidate models.Candidate
	err := m.db.WithContext(ctx).Where("candidate_id = ?", candidateID).First(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}
	return &candidate, nil
}

// GetJobByID 按ID获取岗位。未命中返回 (nil, nil)。
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}
	return &job, nil
}

// GetDefaultStage 获取默认阶段。系统中约定至多存在一个is_default的阶段。
func (m *MySQL) GetDefaultStage(ctx context.Context) (*models.Stage, error) {
	var stage models.Stage
	err := m.db.WithContext(ctx).Where("is_default = ?", true).First(&stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询默认阶段失败: %w", err)
	}
	return &stage, nil
}

// HasInterviewAt 检查指定日期时间是否已存在面试安排（全局唯一约束）
func (m *MySQL) HasInterviewAt(ctx context.Context, at time.Time) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.Interview{}).
		Where("interview_date = ?", at).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询面试时间冲突失败: %w", err)
	}
	return count > 0, nil
}

// DeleteCandidateCascade 删除候选人及其关联的活动和上传记录
func (m *MySQL) DeleteCandidateCascade(ctx context.Context, candidateID string) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.DeleteCandidateCascade", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("candidate.id", candidateID))

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("candidate_id = ?", candidateID).Delete(&models.CandidateActivity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("candidate_id = ?", candidateID).Delete(&models.CVUpload{}).Error; err != nil {
			return err
		}
		return tx.Where("candidate_id = ?", candidateID).Delete(&models.Candidate{}).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("级联删除候选人失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// CandidateFilter 候选人列表的筛选条件，零值字段不参与过滤
type CandidateFilter struct {
	JobID   string
	StageID string
	Status  string
	Limit   int
	Offset  int
}

// ListCandidates 按条件分页查询候选人列表
func (m *MySQL) ListCandidates(ctx context.Context, filter CandidateFilter) ([]models.Candidate, int64, error) {
	query := m.db.WithContext(ctx).Model(&models.Candidate{})
	if filter.JobID != "" {
		query = query.Where("job_id = ?", filter.JobID)
	}
	if filter.StageID != "" {
		query = query.Where("stage_id = ?", filter.StageID)
	}
	if filter.Status != "" {
		query = query.Where("pipeline_status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计候选人数量失败: %w", err)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var candidates []models.Candidate
	if err := query.Order("created_at DESC").Find(&candidates).Error; err != nil {
		return nil, 0, fmt.Errorf("查询候选人列表失败: %w", err)
	}
	return candidates, total, nil
}

// UpdateCandidate 按字段集合更新候选人
func (m *MySQL) UpdateCandidate(ctx context.Context, candidateID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	err := m.db.WithContext(ctx).Model(&models.Candidate{}).
		Where("candidate_id = ?", candidateID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("更新候选人失败: %w", err)
	}
	return nil
}

// ListJobs 查询岗位列表，status为空时返回全部
func (m *MySQL) ListJobs(ctx context.Context, status string) ([]models.Job, error) {
	query := m.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var jobs []models.Job
	if err := query.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("查询岗位列表失败: %w", err)
	}
	return jobs, nil
}

// CreateJob 创建岗位
func (m *MySQL) CreateJob(ctx context.Context, job *models.Job) error {
	if err := m.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("创建岗位失败: %w", err)
	}
	return nil
}

// UpdateJob 按字段集合更新岗位
func (m *MySQL) UpdateJob(ctx context.Context, jobID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	err := m.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ?", jobID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("更新岗位失败: %w", err)
	}
	return nil
}

// DeleteJob 删除岗位，关联的候选人和流水线经由外键置空保留
func (m *MySQL) DeleteJob(ctx context.Context, jobID string) error {
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&models.Job{}).Error; err != nil {
		return fmt.Errorf("删除岗位失败: %w", err)
	}
	return nil
}

// GetStageByID 按ID获取阶段。未命中返回 (nil, nil)。
func (m *MySQL) GetStageByID(ctx context.Context, stageID string) (*models.Stage, error) {
	var stage models.Stage
	err := m.db.WithContext(ctx).Where("stage_id = ?", stageID).First(&stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询阶段失败: %w", err)
	}
	return &stage, nil
}

// ListStagesOrdered 查询阶段列表，按settings.order升序排序，
// 未设置排序权重的阶段按创建时间兜底排在其后。
func (m *MySQL) ListStagesOrdered(ctx context.Context, pipelineID string) ([]models.Stage, error) {
	query := m.db.WithContext(ctx)
	if pipelineID != "" {
		query = query.Where("hiring_pipeline_id = ?", pipelineID)
	}
	var stages []models.Stage
	if err := query.Find(&stages).Error; err != nil {
		return nil, fmt.Errorf("查询阶段列表失败: %w", err)
	}

	sort.SliceStable(stages, func(i, j int) bool {
		oi, okI := stageOrder(stages[i].Settings)
		oj, okJ := stageOrder(stages[j].Settings)
		if okI && okJ {
			return oi < oj
		}
		if okI != okJ {
			return okI
		}
		return stages[i].CreatedAt.Before(stages[j].CreatedAt)
	})
	return stages, nil
}

// stageOrder 从阶段settings中提取排序权重
func stageOrder(settings []byte) (float64, bool) {
	if len(settings) == 0 {
		return 0, false
	}
	var parsed struct {
		Order *float64 `json:"order"`
	}
	if err := json.Unmarshal(settings, &parsed); err != nil || parsed.Order == nil {
		return 0, false
	}
	return *parsed.Order, true
}

// CreateStage 创建阶段
func (m *MySQL) CreateStage(ctx context.Context, stage *models.Stage) error {
	if err := m.db.WithContext(ctx).Create(stage).Error; err != nil {
		return fmt.Errorf("创建阶段失败: %w", err)
	}
	return nil
}

// UpdateStage 按字段集合更新阶段
func (m *MySQL) UpdateStage(ctx context.Context, stageID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	err := m.db.WithContext(ctx).Model(&models.Stage{}).
		Where("stage_id = ?", stageID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("更新阶段失败: %w", err)
	}
	return nil
}

// DeleteStage 删除阶段，处于该阶段的候选人stage_id置空
func (m *MySQL) DeleteStage(ctx context.Context, stageID string) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Candidate{}).
			Where("stage_id = ?", stageID).
			Update("stage_id", nil).Error; err != nil {
			return err
		}
		return tx.Where("stage_id = ?", stageID).Delete(&models.Stage{}).Error
	})
	if err != nil {
		return fmt.Errorf("删除阶段失败: %w", err)
	}
	return nil
}

// ListPipelines 查询流水线列表
func (m *MySQL) ListPipelines(ctx context.Context) ([]models.HiringPipeline, error) {
	var pipelines []models.HiringPipeline
	if err := m.db.WithContext(ctx).Order("created_at ASC").Find(&pipelines).Error; err != nil {
		return nil, fmt.Errorf("查询流水线列表失败: %w", err)
	}
	return pipelines, nil
}

// CreatePipeline 创建流水线
func (m *MySQL) CreatePipeline(ctx context.Context, pipeline *models.HiringPipeline) error {
	if err := m.db.WithContext(ctx).Create(pipeline).Error; err != nil {
		return fmt.Errorf("创建流水线失败: %w", err)
	}
	return nil
}

// GetActivityByID 按ID获取活动记录。未命中返回 (nil, nil)。
func (m *MySQL) GetActivityByID(ctx context.Context, activityID string) (*models.CandidateActivity, error) {
	var activity models.CandidateActivity
	err := m.db.WithContext(ctx).Where("activity_id = ?", activityID).First(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询活动记录失败: %w", err)
	}
	return &activity, nil
}

// CreateActivity 创建活动记录
func (m *MySQL) CreateActivity(ctx context.Context, activity *models.CandidateActivity) error {
	if err := m.db.WithContext(ctx).Create(activity).Error; err != nil {
		return fmt.Errorf("创建活动记录失败: %w", err)
	}
	return nil
}

// UpdateActivity 按字段集合更新活动记录
func (m *MySQL) UpdateActivity(ctx context.Context, activityID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	err := m.db.WithContext(ctx).Model(&models.CandidateActivity{}).
		Where("activity_id = ?", activityID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("更新活动记录失败: %w", err)
	}
	return nil
}

// CreateInterview 创建面试安排
func (m *MySQL) CreateInterview(ctx context.Context, interview *models.Interview) error {
	if err := m.db.WithContext(ctx).Create(interview).Error; err != nil {
		return fmt.Errorf("创建面试安排失败: %w", err)
	}
	return nil
}
