package mcp

import (
	"sync"
	"time"

	"github.com/1broseidon/winbridge/internal/ipc"
)

const (
	DefaultMaxMessages     = 256
	DefaultMessageCapBytes = 1 << 20
)

type bufferedMessage struct {
	seq      uint64
	args     ipc.Args
	size     int
	received time.Time
}

// MessageBuffer keeps the most recent messages of one window, bounded by
// count and by encoded size. The oldest messages are evicted first and
// counted as dropped until the next drain.
type MessageBuffer struct {
	maxMessages int
	maxBytes    int

	mu      sync.Mutex
	items   []bufferedMessage
	bytes   int
	dropped int
	nextSeq uint64
	now     func() time.Time
}

func NewMessageBuffer(maxMessages, maxBytes int) *MessageBuffer {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMessageCapBytes
	}
	return &MessageBuffer{maxMessages: maxMessages, maxBytes: maxBytes, now: time.Now}
}

// Push records args. A single message larger than the byte cap is counted
// as dropped without evicting anything.
func (b *MessageBuffer) Push(args ipc.Args) {
	size := 0
	for _, a := range args {
		size += len(a)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	if size > b.maxBytes {
		b.dropped++
		return
	}
	for len(b.items) > 0 && (len(b.items) >= b.maxMessages || b.bytes+size > b.maxBytes) {
		b.bytes -= b.items[0].size
		b.items = b.items[1:]
		b.dropped++
	}
	b.items = append(b.items, bufferedMessage{seq: b.nextSeq, args: args, size: size, received: b.now().UTC()})
	b.bytes += size
}

// Drain removes and returns up to max messages (all when max <= 0) in
// arrival order, with the number dropped since the previous drain.
func (b *MessageBuffer) Drain(max int) ([]MessageRecord, int) {
	b.mu.Lock()
	n := len(b.items)
	if max > 0 && max < n {
		n = max
	}
	taken := b.items[:n:n]
	b.items = b.items[n:]
	for _, m := range taken {
		b.bytes -= m.size
	}
	dropped := b.dropped
	b.dropped = 0
	b.mu.Unlock()

	records := make([]MessageRecord, 0, len(taken))
	for _, m := range taken {
		rec := MessageRecord{Seq: m.seq, ReceivedUTC: m.received}
		values, err := m.args.Values()
		if err != nil {
			rec.Error = err.Error()
		} else {
			rec.Args = values
		}
		if rec.Args == nil {
			rec.Args = []any{}
		}
		records = append(records, rec)
	}
	return records, dropped
}

// Len returns the number of buffered messages.
func (b *MessageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
