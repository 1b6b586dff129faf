package telegram

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stdhuman/stdhuman/internal/common/logger"
)

// Poller drives getUpdates long-polling and feeds updates to the inbound
// router. It is the default transport; a webhook can replace it without
// touching the router.
type Poller struct {
	client   *Client
	inbound  *Inbound
	interval time.Duration
	logger   *logger.Logger
}

// NewPoller creates a long-poll loop with the given idle interval between
// polls and after failures.
func NewPoller(client *Client, inbound *Inbound, interval time.Duration, log *logger.Logger) *Poller {
	return &Poller{
		client:   client,
		inbound:  inbound,
		interval: interval,
		logger:   log.WithComponent("telegram-poller"),
	}
}

// Run polls until the context is cancelled. Transient failures are logged
// and retried after the poll interval; the offset only advances past
// updates that were handed to the router.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Telegram poller started")
	var offset int64

	for {
		if ctx.Err() != nil {
			p.logger.Info("Telegram poller stopped")
			return
		}

		updates, err := p.client.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("Telegram poller stopped")
				return
			}
			p.logger.Warn("getUpdates failed, retrying", zap.Error(err))
			p.sleep(ctx)
			continue
		}

		for idx := range updates {
			update := &updates[idx]
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			p.inbound.HandleUpdate(ctx, update)
		}

		if len(updates) == 0 {
			p.sleep(ctx)
		}
	}
}

func (p *Poller) sleep(ctx context.Context) {
	select {
	case <-time.After(p.interval):
	case <-ctx.Done():
	}
}
