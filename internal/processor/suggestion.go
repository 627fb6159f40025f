package processor

import (
	"fmt"

	"hiring-go/internal/constants"
	"hiring-go/internal/types"
)

// ReplaceScoreRatio 终态候选人只有在新简历评分显著提高时才建议替换
const ReplaceScoreRatio = 1.2

// StatusPriority 流水线状态的处置优先级。数值越小，已有候选人
// 在流程中走得越远，新文件越应该被跳过。
type StatusPriority int

const (
	// PriorityHired 已录用
	PriorityHired StatusPriority = 1
	// PriorityOffered 已发offer
	PriorityOffered StatusPriority = 2
	// PriorityInterviewing 面试进行中
	PriorityInterviewing StatusPriority = 3
	// PriorityClosed 已出局（拒绝/撤回等）
	PriorityClosed StatusPriority = 4
	// PriorityEarly 早期阶段（默认档）
	PriorityEarly StatusPriority = 5
)

// priorityOf 将流水线状态映射到处置优先级。
// 枚举封闭：未知状态一律落入早期阶段档，不会panic。
func priorityOf(status string) StatusPriority {
	switch status {
	case constants.StatusHired, constants.StatusAccepted, constants.StatusOfferAccepted:
		return PriorityHired
	case constants.StatusOffered, constants.StatusOfferPending, constants.StatusFinalRound:
		return PriorityOffered
	case constants.StatusInterviewing, constants.StatusInterviewScheduled, constants.StatusInProgress,
		constants.StatusTechnicalInterview, constants.StatusHRInterview:
		return PriorityInterviewing
	case constants.StatusRejected, constants.StatusDeclined, constants.StatusWithdrawn,
		constants.StatusGhosted, constants.StatusNotInterested:
		return PriorityClosed
	default:
		// pending/applied/screening/reviewed/shortlisted/on_hold 及一切未知状态
		return PriorityEarly
	}
}

// sameJob 判断目标岗位与已有候选人的岗位是否一致，两者都未关联岗位也视为一致
func sameJob(existingJobID, targetJobID *string) bool {
	if existingJobID == nil && targetJobID == nil {
		return true
	}
	if existingJobID == nil || targetJobID == nil {
		return false
	}
	return *existingJobID == *targetJobID
}

// Suggest 为一个重复判定生成处置建议。纯函数，只依赖入参。
// newData 中的 pipeline_status 只影响本次决策使用的有效状态，不会被落库。
func Suggest(existing *types.CandidateSnapshot, targetJobID *string, newData *types.ParsedResult) types.Suggestion {
	if existing == nil {
		return types.Suggestion{
			SuggestedAction: types.ActionCreateNew,
			Reason:          "未找到已有候选人记录，按新候选人处理",
		}
	}

	// 决策用的有效状态：新数据显式携带状态时以新数据为准
	effectiveStatus := existing.PipelineStatus
	if newData != nil && newData.PipelineStatus != "" {
		effectiveStatus = newData.PipelineStatus
	}

	switch priorityOf(effectiveStatus) {
	case PriorityHired:
		return types.Suggestion{
			SuggestedAction: types.ActionSkip,
			Reason:          fmt.Sprintf("候选人已录用（状态: %s），不应再被新简历覆盖", effectiveStatus),
		}
	case PriorityOffered:
		return types.Suggestion{
			SuggestedAction: types.ActionSkip,
			Reason:          fmt.Sprintf("候选人处于offer阶段（状态: %s），跳过新文件", effectiveStatus),
		}
	case PriorityInterviewing:
		return types.Suggestion{
			SuggestedAction: types.ActionSkip,
			Reason:          fmt.Sprintf("候选人面试流程进行中（状态: %s），跳过新文件", effectiveStatus),
		}
	case PriorityClosed:
		return suggestForClosed(existing, targetJobID, newData, effectiveStatus)
	default:
		return suggestForEarly(existing, targetJobID, newData, effectiveStatus)
	}
}

// suggestForClosed 已出局候选人的处置建议
func suggestForClosed(existing *types.CandidateSnapshot, targetJobID *string, newData *types.ParsedResult, status string) types.Suggestion {
	if !sameJob(existing.JobID, targetJobID) {
		return types.Suggestion{
			SuggestedAction: types.ActionCreateNew,
			Reason:          fmt.Sprintf("候选人此前在其他岗位已出局（状态: %s），针对新岗位建立独立记录", status),
		}
	}

	// 同岗位：仅当新简历评分显著高于旧评分时建议替换
	if newData != nil && newData.FitScore != nil && existing.FitScore != nil &&
		*newData.FitScore >= *existing.FitScore*ReplaceScoreRatio {
		return types.Suggestion{
			SuggestedAction: types.ActionReplace,
			Reason: fmt.Sprintf("候选人已出局但新简历评分显著提高（%.0f -> %.0f），建议替换旧记录",
				*existing.FitScore, *newData.FitScore),
		}
	}
	return types.Suggestion{
		SuggestedAction: types.ActionMerge,
		Reason:          fmt.Sprintf("候选人在同岗位已出局（状态: %s），新简历评分无显著提高，补全缺失字段即可", status),
	}
}

// suggestForEarly 早期阶段候选人的处置建议
func suggestForEarly(existing *types.CandidateSnapshot, targetJobID *string, newData *types.ParsedResult, status string) types.Suggestion {
	if !sameJob(existing.JobID, targetJobID) {
		return types.Suggestion{
			SuggestedAction: types.ActionCreateNew,
			Reason:          fmt.Sprintf("候选人正在申请其他岗位（状态: %s），针对新岗位建立独立记录", status),
		}
	}

	// 同岗位：新简历评分更高时建议替换，否则合并
	if newData != nil && newData.FitScore != nil && existing.FitScore != nil &&
		*newData.FitScore > *existing.FitScore {
		return types.Suggestion{
			SuggestedAction: types.ActionReplace,
			Reason: fmt.Sprintf("新简历评分更高（%.0f -> %.0f），建议替换旧记录",
				*existing.FitScore, *newData.FitScore),
		}
	}
	return types.Suggestion{
		SuggestedAction: types.ActionMerge,
		Reason:          fmt.Sprintf("候选人处于早期阶段（状态: %s），新简历未带来更高评分，补全缺失字段即可", status),
	}
}
