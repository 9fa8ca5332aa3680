package relaypool

import "github.com/ziflex/lecho/v3"

// PoolOption configures a DefaultPool at dial time.
type PoolOption = func(p *DefaultPool)

func WithLogger(logger *lecho.Logger) PoolOption {
	return func(p *DefaultPool) {
		p.logger = logger
	}
}

func WithStatusHandler(h StatusHandler) PoolOption {
	return func(p *DefaultPool) {
		p.onStatus = h
	}
}
