package internal

import (
	"github.com/kapetan-io/semq/transport"
)

const (
	MsgQueueInShutdown   = "queue is shutting down"
	MsgServiceInShutdown = "service is shutting down"
	MsgQueueOverLoaded   = "queue is overloaded; try again later"
)

var (
	ErrQueueShutdown   = transport.NewRequestFailed(MsgQueueInShutdown)
	ErrServiceShutdown = transport.NewRequestFailed(MsgServiceInShutdown)
)
