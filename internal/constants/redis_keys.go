package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "hiring"

	// CVModulePrefix 简历文件模块
	CVModulePrefix = "cv"
	// StageModulePrefix 阶段模块
	StageModulePrefix = "stage"

	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"
	// EntityDefault 默认项实体
	EntityDefault = "default"

	// KeyCVHashSet 某岗位下已见简历指纹集合 (SET)
	// 格式: hiring:cv:dedup_set:{jobID}，未指定岗位时 jobID 为 unassigned
	KeyCVHashSet = AppPrefix + ":" + CVModulePrefix + ":" + EntityDedupSet + ":%s"

	// KeyDefaultStage 默认阶段ID缓存 (STRING)
	// 格式: hiring:stage:default
	KeyDefaultStage = AppPrefix + ":" + StageModulePrefix + ":" + EntityDefault
)
