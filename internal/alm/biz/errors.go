package biz

import "errors"

// 错误分类。每类错误决定状态机的不同走向：
// 只有 ErrConfiguration 会中止整个模板的处理。
var (
	// ErrInsufficientData fit 输入为空或小于最小聚类规模。
	// 仅使本次 fit 失败，不影响已加载的模型。
	ErrInsufficientData = errors.New("insufficient data for clustering fit")

	// ErrMalformedRequest 分类器产出了复合请求或非日志请求。
	// 路由器就地恢复：强制 Sufficient。
	ErrMalformedRequest = errors.New("malformed retrieval request")

	// ErrRetrieval 外部检索能力失败或超时。
	// 记入 bundle，消耗一轮，继续。
	ErrRetrieval = errors.New("retrieval failed")

	// ErrConfiguration 缺少锚点时间戳或请求无工具可匹配。
	// 状态机转 Aborted，错误上抛给调用方。
	ErrConfiguration = errors.New("configuration error")
)
