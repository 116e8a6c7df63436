package consensus

import (
	"fmt"
	"time"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	cstypes "guardbft/consensus/types"
)

// TimeoutTicker提供本轮超时事件
// 同一时间只保留最新的一个定时器，旧的(height, round, step)会被覆盖
type TimeoutTicker interface {
	Start() error
	Stop() error
	Chan() <-chan timeoutInfo

	// ScheduleTimeout 重置定时器
	ScheduleTimeout(ti timeoutInfo)

	SetLogger(log.Logger)
}

// internally generated messages which may update the state
type timeoutInfo struct {
	Duration time.Duration         `json:"duration"`
	Height   uint64                `json:"height"`
	Round    uint32                `json:"round"`
	Step     cstypes.RoundStepType `json:"step"`
}

func (ti *timeoutInfo) String() string {
	return fmt.Sprintf("%v ; %d/%d %v", ti.Duration, ti.Height, ti.Round, ti.Step)
}

type timeoutTicker struct {
	service.BaseService

	timer    *time.Timer
	tickChan chan timeoutInfo // for scheduling timeouts
	tockChan chan timeoutInfo // for notifying about them
}

// NewTimeoutTicker returns a new TimeoutTicker.
func NewTimeoutTicker() TimeoutTicker {
	tt := &timeoutTicker{
		timer:    time.NewTimer(0),
		tickChan: make(chan timeoutInfo, 10),
		tockChan: make(chan timeoutInfo, 10),
	}
	tt.BaseService = *service.NewBaseService(nil, "TimeoutTicker", tt)
	tt.stopTimer() // don't want to fire until the first scheduled timeout
	return tt
}

func (t *timeoutTicker) OnStart() error {
	go t.timeoutRoutine()
	return nil
}

func (t *timeoutTicker) OnStop() {
	t.stopTimer()
}

func (t *timeoutTicker) Chan() <-chan timeoutInfo {
	return t.tockChan
}

func (t *timeoutTicker) ScheduleTimeout(ti timeoutInfo) {
	select {
	case t.tickChan <- ti:
	case <-t.Quit():
	}
}

func (t *timeoutTicker) stopTimer() {
	// Stop() returns false if it was already fired or was stopped
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
			t.Logger.Debug("Timer already stopped")
		}
	}
}

// 只处理最新的定时请求，比当前(height, round)旧的请求直接忽略
func (t *timeoutTicker) timeoutRoutine() {
	t.Logger.Debug("Starting timeout routine")
	var ti timeoutInfo
	for {
		select {
		case newti := <-t.tickChan:
			t.Logger.Debug("Received tick", "old_ti", ti, "new_ti", newti)

			if newti.Height < ti.Height {
				continue
			} else if newti.Height == ti.Height && newti.Round < ti.Round {
				continue
			}

			t.stopTimer()
			ti = newti
			t.timer.Reset(ti.Duration)
			t.Logger.Debug("Scheduled timeout", "dur", ti.Duration, "height", ti.Height, "round", ti.Round, "step", ti.Step)
		case <-t.timer.C:
			t.Logger.Info("Timed out", "dur", ti.Duration, "height", ti.Height, "round", ti.Round, "step", ti.Step)
			// go routine here guarantees timeoutRoutine doesn't block.
			go func(toi timeoutInfo) {
				select {
				case t.tockChan <- toi:
				case <-t.Quit():
				}
			}(ti)
		case <-t.Quit():
			return
		}
	}
}
