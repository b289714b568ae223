package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/logger"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/metrics"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/utils/json"
)

const planCachePrefix = "alm:plan:"

// PlanCache 按模板缓存成品 TriageResult。同一模板短期内重复告警
// 直接复用方案，不再走完整路由。新颖模板的向量哈希 ID 天然可作缓存键。
type PlanCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPlanCache(client *goredis.Client, ttl time.Duration) *PlanCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PlanCache{client: client, ttl: ttl}
}

// cacheKey 由模板 ID 与代表项消息共同决定，防止模型重拟合后
// 簇下标复用导致串缓存。
func (c *PlanCache) cacheKey(template *model.LogTemplate) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", template.ID, template.Representative.Message)))
	return planCachePrefix + hex.EncodeToString(h[:16])
}

// Get 返回缓存的结果，未命中或反序列化失败返回 nil。
func (c *PlanCache) Get(ctx context.Context, template *model.LogTemplate) *model.TriageResult {
	m := metrics.Get()
	data, err := c.client.Get(ctx, c.cacheKey(template)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			logger.Warnw("plan cache lookup failed", "template", template.ID, "error", err.Error())
		}
		m.RecordPlanCache(false)
		return nil
	}

	var result model.TriageResult
	if err := json.Unmarshal(data, &result); err != nil {
		// 损坏条目直接清除，下次重算
		_ = c.client.Del(ctx, c.cacheKey(template)).Err()
		m.RecordPlanCache(false)
		return nil
	}
	m.RecordPlanCache(true)
	result.FromCache = true
	return &result
}

// Set 写入缓存，失败只记日志。
func (c *PlanCache) Set(ctx context.Context, template *model.LogTemplate, result *model.TriageResult) {
	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("plan cache marshal failed", "template", template.ID, "error", err.Error())
		return
	}
	if err := c.client.Set(ctx, c.cacheKey(template), data, c.ttl).Err(); err != nil {
		logger.Warnw("plan cache store failed", "template", template.ID, "error", err.Error())
	}
}
