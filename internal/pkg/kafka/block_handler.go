package kafka

import (
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

const userBlocksTable = "user_blocks"

// BlockApplier 把用户屏蔽关系同步到会话
type BlockApplier interface {
	SetBlockedBetween(ctx context.Context, blocker, blocked uint64, value bool) error
}

// BlockHandler 消费 user_blocks 表的 binlog
// INSERT 视为屏蔽，DELETE 视为解除，UPDATE 只在 is_deleted 变化时处理
type BlockHandler struct {
	applier BlockApplier
}

func NewBlockHandler(applier BlockApplier) *BlockHandler {
	return &BlockHandler{applier: applier}
}

func (s *BlockHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("user blocks consumer setup")
	return nil
}

func (s *BlockHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("user blocks consumer cleanup")
	return nil
}

func (s *BlockHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-user-blocks consume claim", "partition", claim.Partition())
	return pullMessageBatch(session, claim, s.logic)
}

func (s *BlockHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	canalMsg, err := ToCanalMessage(msg, userBlocksTable)
	if err != nil {
		return err
	}

	for i, row := range canalMsg.Data {
		blocker := StrToUint64(row["blocker_id"])
		blocked := StrToUint64(row["blocked_id"])
		if blocker == 0 || blocked == 0 {
			log.WarnContext(ctx, "user_blocks row without ids", "row", row)
			continue
		}

		value, ok := blockValue(canalMsg, i)
		if !ok {
			continue
		}
		if err := s.applier.SetBlockedBetween(ctx, blocker, blocked, value); err != nil {
			return err
		}
	}
	return nil
}

// blockValue 根据变更类型判断屏蔽状态，第二个返回值为 false 表示无需处理
func blockValue(msg *CanalMessage, i int) (bool, bool) {
	row := msg.Data[i]
	switch msg.Type {
	case INSERT:
		return row["is_deleted"] != "1", true
	case DELETE:
		return false, true
	case UPDATE:
		if i >= len(msg.Old) {
			return false, false
		}
		if _, changed := msg.Old[i]["is_deleted"]; !changed {
			return false, false
		}
		return row["is_deleted"] != "1", true
	default:
		return false, false
	}
}
