package txtrack

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Pending 描述一笔等待回执的交易。
type Pending struct {
	Network  string `json:"network"`
	Hash     string `json:"hash"`
	Attempts int    `json:"attempts"`
	// NotBefore 为毫秒时间戳，消费者在此之前不会重查回执。
	NotBefore int64 `json:"not_before,omitempty"`
}

// Due 返回剩余等待时间，已到期时为零。
func (p Pending) Due(now time.Time) time.Duration {
	if p.NotBefore == 0 {
		return 0
	}
	wait := time.UnixMilli(p.NotBefore).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Handler 处理来自队列的待确认交易。
type Handler func(ctx context.Context, pending Pending) error

// Producer 负责向队列投递待确认交易。
type Producer interface {
	Publish(ctx context.Context, pending Pending) error
	Close() error
}

// Consumer 负责从队列中消费待确认交易。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

func encode(p Pending) ([]byte, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("序列化待确认交易失败: %w", err)
	}
	return payload, nil
}

func decode(payload []byte) (Pending, error) {
	var p Pending
	if err := json.Unmarshal(payload, &p); err != nil {
		return Pending{}, fmt.Errorf("解析待确认交易失败: %w", err)
	}
	if p.Hash == "" {
		return Pending{}, fmt.Errorf("待确认交易缺少哈希: %s", payload)
	}
	return p, nil
}
