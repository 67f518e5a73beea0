package lifecycle

import (
	"errors"
	"fmt"

	"github.com/rithindattag/Annotara/internal/repository"
)

// 生命周期错误分类,调用方通过 errors.Is 判断
var (
	// ErrLockConflict 其他用户持有锁,或非持有人释放锁
	ErrLockConflict = errors.New("lock conflict")
	// ErrIllegalTransition 当前状态或角色不允许该转换
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrNotFound 任务不存在
	ErrNotFound = errors.New("not found")
	// ErrProviderFailure AI 服务调用失败、超时或返回无效结果
	ErrProviderFailure = errors.New("provider failure")
	// ErrStoreUnavailable 存储不可用,写入结果无法确认
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidArgument 请求参数无效
	ErrInvalidArgument = errors.New("invalid argument")
)

// errLostRace 条件更新未命中,记录已被并发修改
var errLostRace = errors.New("conditional update lost race")

// StoreError 将存储层错误归类为 ErrNotFound 或 ErrStoreUnavailable
func StoreError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errLostRace),
		errors.Is(err, ErrLockConflict),
		errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrInvalidArgument):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	default:
		return fmt.Errorf("%w: failed to %s: %w", ErrStoreUnavailable, op, err)
	}
}
