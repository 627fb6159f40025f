package processor

import (
	"context"
	"testing"

	"hiring-go/internal/storage"
	"hiring-go/internal/storage/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hiring-go/internal/types"
)

// newTestDB 创建基于SQLite内存库的存储客户端
func newTestDB(t *testing.T) *storage.MySQL {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	// 内存库只存在于单个连接上
	sqlDB.SetMaxOpenConns(1)

	db, err := storage.NewMySQLWithDB(gormDB)
	require.NoError(t, err)
	return db
}

func seedCandidate(t *testing.T, db *storage.MySQL, candidate *models.Candidate) {
	t.Helper()
	require.NoError(t, db.DB().Create(candidate).Error)
}

func seedUpload(t *testing.T, db *storage.MySQL, upload *models.CVUpload) {
	t.Helper()
	require.NoError(t, db.DB().Create(upload).Error)
}

func TestClassifyHashHit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	jobID := "job-1"

	seedCandidate(t, db, &models.Candidate{
		CandidateID:    "cand-1",
		FullName:       "李四",
		Email:          "lisi@example.com",
		PipelineStatus: "pending",
		JobID:          &jobID,
	})
	seedUpload(t, db, &models.CVUpload{
		UploadID:    "upload-1",
		CandidateID: "cand-1",
		JobID:       &jobID,
		FileName:    "lisi.pdf",
		FileHash:    "hash-abc",
	})

	classifier := NewDuplicateClassifier(db)

	dup, err := classifier.ClassifyHash(ctx, "hash-abc", &jobID)
	require.NoError(t, err)
	require.NotNil(t, dup)
	require.Equal(t, types.MatchTypeHash, dup.MatchType)
	require.Equal(t, "cand-1", dup.ExistingCandidateID)
	require.Equal(t, "李四", dup.Existing.FullName)

	// 未命中的指纹
	dup, err = classifier.ClassifyHash(ctx, "hash-other", &jobID)
	require.NoError(t, err)
	require.Nil(t, dup)
}

func TestClassifyHashScopedByJob(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	jobA := "job-a"

	seedCandidate(t, db, &models.Candidate{CandidateID: "cand-1", PipelineStatus: "pending", JobID: &jobA})
	seedUpload(t, db, &models.CVUpload{UploadID: "u1", CandidateID: "cand-1", JobID: &jobA, FileHash: "h1"})

	classifier := NewDuplicateClassifier(db)

	// 同一指纹投向另一岗位不算重复
	jobB := "job-b"
	dup, err := classifier.ClassifyHash(ctx, "h1", &jobB)
	require.NoError(t, err)
	require.Nil(t, dup)

	// 无岗位范围也不与岗位内的记录匹配
	dup, err = classifier.ClassifyHash(ctx, "h1", nil)
	require.NoError(t, err)
	require.Nil(t, dup)
}

func TestClassifyHashOrphanUpload(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// 上传记录存在但候选人已被删除
	seedUpload(t, db, &models.CVUpload{UploadID: "u1", CandidateID: "gone", FileHash: "h1"})

	classifier := NewDuplicateClassifier(db)
	dup, err := classifier.ClassifyHash(ctx, "h1", nil)
	require.NoError(t, err)
	require.Nil(t, dup, "孤儿上传记录不构成重复")
}

func TestClassifyEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	jobID := "job-1"

	seedCandidate(t, db, &models.Candidate{
		CandidateID:    "cand-1",
		Email:          "wangwu@example.com",
		PipelineStatus: "interviewing",
		JobID:          &jobID,
	})

	classifier := NewDuplicateClassifier(db)

	dup, err := classifier.ClassifyEmail(ctx, "wangwu@example.com", &jobID)
	require.NoError(t, err)
	require.NotNil(t, dup)
	require.Equal(t, types.MatchTypeEmail, dup.MatchType)

	// 空邮箱直接判定非重复
	dup, err = classifier.ClassifyEmail(ctx, "", &jobID)
	require.NoError(t, err)
	require.Nil(t, dup)

	// 其他岗位范围不匹配
	other := "job-2"
	dup, err = classifier.ClassifyEmail(ctx, "wangwu@example.com", &other)
	require.NoError(t, err)
	require.Nil(t, dup)
}
