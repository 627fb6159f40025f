package processor

import (
	"testing"

	"hiring-go/internal/types"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }
func strPtr(s string) *string     { return &s }

func snapshot(status string, jobID *string, score *float64) *types.CandidateSnapshot {
	return &types.CandidateSnapshot{
		CandidateID:    "cand-1",
		FullName:       "张三",
		Email:          "zhangsan@example.com",
		PipelineStatus: status,
		JobID:          jobID,
		FitScore:       score,
	}
}

func TestSuggestNoExistingCandidate(t *testing.T) {
	s := Suggest(nil, strPtr("job-1"), &types.ParsedResult{})
	assert.Equal(t, types.ActionCreateNew, s.SuggestedAction)
}

func TestSuggestSkipForAdvancedStatuses(t *testing.T) {
	// 走得越远的候选人越不应被新文件影响，无论岗位和评分如何
	advanced := []string{
		"hired", "accepted", "offer_accepted",
		"offered", "offer_pending", "final_interview",
		"interviewing", "interview_scheduled", "in_progress", "technical_interview", "hr_interview",
	}
	for _, status := range advanced {
		t.Run(status, func(t *testing.T) {
			existing := snapshot(status, strPtr("job-1"), floatPtr(50))
			newData := &types.ParsedResult{FitScore: floatPtr(99)}

			s := Suggest(existing, strPtr("job-1"), newData)
			assert.Equal(t, types.ActionSkip, s.SuggestedAction)
			assert.Contains(t, s.Reason, status, "理由应点明决定性的状态")

			// 不同岗位同样跳过
			s = Suggest(existing, strPtr("job-2"), newData)
			assert.Equal(t, types.ActionSkip, s.SuggestedAction)
		})
	}
}

func TestSuggestClosedCandidateDifferentJob(t *testing.T) {
	existing := snapshot("rejected", strPtr("job-1"), floatPtr(60))
	s := Suggest(existing, strPtr("job-2"), &types.ParsedResult{FitScore: floatPtr(60)})
	assert.Equal(t, types.ActionCreateNew, s.SuggestedAction)
}

func TestSuggestClosedCandidateSameJobSignificantImprovement(t *testing.T) {
	existing := snapshot("rejected", strPtr("job-1"), floatPtr(60))

	// 60 -> 85 超过1.2倍阈值，建议替换
	s := Suggest(existing, strPtr("job-1"), &types.ParsedResult{FitScore: floatPtr(85)})
	assert.Equal(t, types.ActionReplace, s.SuggestedAction)
	assert.Contains(t, s.Reason, "显著")

	// 60 -> 65 未达阈值，建议合并
	s = Suggest(existing, strPtr("job-1"), &types.ParsedResult{FitScore: floatPtr(65)})
	assert.Equal(t, types.ActionMerge, s.SuggestedAction)

	// 恰好达到阈值边界 60*1.2=72
	s = Suggest(existing, strPtr("job-1"), &types.ParsedResult{FitScore: floatPtr(72)})
	assert.Equal(t, types.ActionReplace, s.SuggestedAction)
}

func TestSuggestClosedCandidateMissingScores(t *testing.T) {
	// 任一侧评分缺失时不满足替换条件，回落到合并
	existing := snapshot("withdrawn", strPtr("job-1"), nil)
	s := Suggest(existing, strPtr("job-1"), &types.ParsedResult{FitScore: floatPtr(90)})
	assert.Equal(t, types.ActionMerge, s.SuggestedAction)

	existing = snapshot("withdrawn", strPtr("job-1"), floatPtr(60))
	s = Suggest(existing, strPtr("job-1"), nil)
	assert.Equal(t, types.ActionMerge, s.SuggestedAction)
}

func TestSuggestEarlyCandidate(t *testing.T) {
	existing := snapshot("pending", strPtr("job-1"), floatPtr(70))

	// 不同岗位另建记录
	s := Suggest(existing, strPtr("job-2"), &types.ParsedResult{FitScore: floatPtr(70)})
	assert.Equal(t, types.ActionCreateNew, s.SuggestedAction)

	// 同岗位且评分严格提高时替换
	s = Suggest(existing, strPtr("job-1"), &types.ParsedResult{FitScore: floatPtr(71)})
	assert.Equal(t, types.ActionReplace, s.SuggestedAction)

	// 评分持平时合并
	s = Suggest(existing, strPtr("job-1"), &types.ParsedResult{FitScore: floatPtr(70)})
	assert.Equal(t, types.ActionMerge, s.SuggestedAction)
}

func TestSuggestUnknownStatusFallsBackToEarly(t *testing.T) {
	existing := snapshot("some_future_status", strPtr("job-1"), floatPtr(50))
	s := Suggest(existing, strPtr("job-1"), &types.ParsedResult{FitScore: floatPtr(80)})
	assert.Equal(t, types.ActionReplace, s.SuggestedAction, "未知状态按早期阶段处理，不应panic")
}

func TestSuggestEffectiveStatusOverride(t *testing.T) {
	// 新数据显式携带状态时，决策使用新状态
	existing := snapshot("pending", strPtr("job-1"), floatPtr(50))
	newData := &types.ParsedResult{PipelineStatus: "hired", FitScore: floatPtr(99)}
	s := Suggest(existing, strPtr("job-1"), newData)
	assert.Equal(t, types.ActionSkip, s.SuggestedAction)
}

func TestSuggestNilJobIDsCountAsSameJob(t *testing.T) {
	existing := snapshot("pending", nil, floatPtr(50))
	s := Suggest(existing, nil, &types.ParsedResult{FitScore: floatPtr(40)})
	assert.Equal(t, types.ActionMerge, s.SuggestedAction, "双方都未关联岗位视为同岗位")
}
