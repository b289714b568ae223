package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/llm"
)

const generatorSystemPrompt = `You are a site reliability engineer writing remediation plans.
You are given one anomalous log line (the anchor) and the evidence gathered
around it. Write a concrete, step-by-step remediation plan an on-call engineer
can follow. Be specific about services, files and commands. If the evidence is
thin, say so and base the plan on the anchor alone. Do not invent evidence.`

// RemediationGenerator 基于累积上下文生成修复方案。
// 每个路由实例至多调用一次，空 bundle 也要产出方案。
type RemediationGenerator struct {
	chat llm.ChatProvider
}

func NewRemediationGenerator(chat llm.ChatProvider) *RemediationGenerator {
	return &RemediationGenerator{chat: chat}
}

func (g *RemediationGenerator) Generate(ctx context.Context, bundle *model.ContextBundle) (string, error) {
	plan, err := g.chat.Generate(ctx, g.buildPrompt(bundle), generatorSystemPrompt)
	if err != nil {
		return "", fmt.Errorf("remediation generation: %w", err)
	}
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return "", fmt.Errorf("remediation generation: empty plan")
	}
	return plan, nil
}

func (g *RemediationGenerator) buildPrompt(bundle *model.ContextBundle) string {
	var b strings.Builder
	anchor := bundle.Anchor

	b.WriteString("Anchor log:\n")
	fmt.Fprintf(&b, "  time: %s\n", anchor.Time().UTC().Format("2006-01-02T15:04:05Z"))
	if anchor.Labels.ServiceName != "" {
		fmt.Fprintf(&b, "  service: %s\n", anchor.Labels.ServiceName)
	}
	if anchor.Labels.Filename != "" {
		fmt.Fprintf(&b, "  file: %s\n", anchor.Labels.Filename)
	}
	if anchor.Category != "" {
		fmt.Fprintf(&b, "  category: %s\n", anchor.Category)
	}
	fmt.Fprintf(&b, "  message: %s\n", anchor.Message)
	if anchor.Summary != "" {
		fmt.Fprintf(&b, "  summary: %s\n", anchor.Summary)
	}

	succeeded := bundle.SucceededItems()
	if len(succeeded) == 0 {
		b.WriteString("\nNo additional evidence could be gathered. Base the plan on the anchor alone and note the uncertainty.\n")
		return b.String()
	}

	b.WriteString("\nGathered evidence:\n")
	for i, item := range succeeded {
		fmt.Fprintf(&b, "[%d] source=%s request=%q\n%s\n\n", i+1, item.Source, item.Request, item.Payload)
	}
	return b.String()
}
