package workerbridge

import (
	"context"
	"errors"
)

// ErrDeviceBusy - камера занята другим вызовом, а политика запрещает ждать
var ErrDeviceBusy = errors.New("камера занята")

// Camera - токен эксклюзивного доступа к единственной камере.
// Оба воркера открывают камеру на время работы, параллельный запуск портит оба видеопотока.
type Camera struct {
	token chan struct{}
	wait  bool
}

// NewCamera создает токен. wait=true - ставить вызовы в очередь, false - отклонять.
func NewCamera(wait bool) *Camera {
	return &Camera{token: make(chan struct{}, 1), wait: wait}
}

// Acquire занимает камеру. Возвращенную функцию нужно вызвать ровно один раз.
func (c *Camera) Acquire(ctx context.Context) (release func(), err error) {
	if !c.wait {
		select {
		case c.token <- struct{}{}:
			return c.release, nil
		default:
			return nil, ErrDeviceBusy
		}
	}

	select {
	case c.token <- struct{}{}:
		return c.release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Busy - занята ли камера прямо сейчас
func (c *Camera) Busy() bool {
	return len(c.token) > 0
}

func (c *Camera) release() {
	<-c.token
}
