// Package engine 提供带 Token 预算的多层上下文装配能力。
//
// 本包实现了一条 获取-评分-剪裁 (Fetch-Score-Budget) 流水线，
// 从三个相互独立的存储层为每次 LLM 交互组装最相关的上下文。
// 主要功能包括：
//
//   - 三层存储契约：会话（短期对话）、旅程（长期向量检索）、知识（共享领域事实）
//   - 共享截止时间下的并发获取，单层失败只降级不中断
//   - 基于新近性半衰期衰减和里程碑依赖加分的相关性评分
//   - 按层份额划分的硬性 Token 预算，条目完整包含或完整排除
//   - 完全确定的装配结果：相同输入逐字节产出相同输出
//
// # 基本用法
//
// 创建一个装配器并发起一次装配：
//
//	assembler := engine.NewAssembler(
//	    engine.WithSessionStore(sessions),
//	    engine.WithJourneyStore(journeys),
//	    engine.WithKnowledgeStore(knowledge),
//	    engine.WithEmbedder(embedder),
//	)
//
//	result, err := assembler.Assemble(ctx, engine.ContextRequest{
//	    UserID:      "user-1",
//	    MilestoneID: "m-payments",
//	    QueryText:   "如何配置退款流程？",
//	})
//
// # 预算配置
//
// 预算定义总 Token 上限和各层份额，份额之和不超过 1.0，
// 刻意预留的余量不会被重新分配：
//
//	budget := engine.ContextBudget{
//	    MaxTokens: 8000,
//	    LayerShares: map[engine.SourceLayer]float64{
//	        engine.LayerSession:   0.25,
//	        engine.LayerJourney:   0.45,
//	        engine.LayerKnowledge: 0.20,
//	    },
//	}
//
//	assembler := engine.NewAssembler(
//	    engine.WithDefaultBudget(budget),
//	    engine.WithMilestoneBudget("m-onboarding", onboardingBudget),
//	)
//
// # 降级语义
//
// 任何一层超时或出错时，其余层的结果仍然返回并标记 Degraded；
// 嵌入服务不可用时旅程层整体跳过。只有三层全部失败才返回
// ErrNoContextAvailable。
package engine
