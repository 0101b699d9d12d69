package repository

import (
	"Murmur/internal/model"
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const mysqlDuplicateEntry = 1062

// ErrCallExists 主键冲突
var ErrCallExists = errors.New("call session already exists")

type CallRepo interface {
	Create(ctx context.Context, call *model.CallSession) error
	GetByID(ctx context.Context, id string) (*model.CallSession, error)
	// Transition 仅当当前状态属于 to 的合法前驱时更新，返回是否更新成功
	Transition(ctx context.Context, id string, to model.CallStatus, fields map[string]interface{}) (bool, error)
	ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]*model.CallSession, error)
}

type callRepoImpl struct {
	db *gorm.DB
}

func NewCallRepo(db *gorm.DB) CallRepo {
	return &callRepoImpl{db: db}
}

func (s *callRepoImpl) Create(ctx context.Context, call *model.CallSession) error {
	err := s.db.WithContext(ctx).Create(call).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return ErrCallExists
	}
	return err
}

// GetByID 不存在时返回 nil, nil
func (s *callRepoImpl) GetByID(ctx context.Context, id string) (*model.CallSession, error) {
	call := &model.CallSession{}
	err := s.db.WithContext(ctx).Where("id = ?", id).First(call).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return call, nil
}

func (s *callRepoImpl) Transition(ctx context.Context, id string, to model.CallStatus, fields map[string]interface{}) (bool, error) {
	from := to.From()
	if len(from) == 0 {
		return false, nil
	}
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := s.db.WithContext(ctx).
		Model(&model.CallSession{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByUser 通话记录，按发起时间倒序
func (s *callRepoImpl) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]*model.CallSession, error) {
	calls := make([]*model.CallSession, 0, limit)
	err := s.db.WithContext(ctx).
		Where("caller_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&calls).Error
	if err != nil {
		return nil, err
	}
	return calls, nil
}
