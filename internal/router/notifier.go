package router

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dpblh/kite/internal/layout"
)

// NotificationType represents the type of notification.
type NotificationType int

const (
	FileWritten NotificationType = iota
	FileRemoved
)

func (t NotificationType) String() string {
	switch t {
	case FileWritten:
		return "file_written"
	case FileRemoved:
		return "file_removed"
	default:
		return "unknown"
	}
}

// Notification describes a change to a dataset partition.
type Notification struct {
	Type      NotificationType
	Dataset   string
	Partition string
	FileID    string
	Object    string
	Records   int64
	Timestamp int64
}

// Notifier is an in-process pub/sub bus for partition changes. Publishing
// never blocks: a subscriber whose buffer is full misses the notification.
type Notifier struct {
	mu          sync.RWMutex // guards subscribers; held for reading while sending
	subscribers map[string]*Subscriber
	bufferSize  int
}

// Subscriber receives the notifications matching its filters.
type Subscriber struct {
	ID      string
	Dataset string
	Filters [][]layout.Segment
	Ch      chan Notification
}

// NewNotifier creates a notifier whose subscriber channels hold bufferSize
// notifications.
func NewNotifier(bufferSize int) *Notifier {
	return &Notifier{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// Publish sends a notification to all matching subscribers.
func (n *Notifier) Publish(notif Notification) {
	segments, err := layout.Parse(notif.Partition)
	if err != nil {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subscribers {
		if sub.matches(notif.Dataset, segments) {
			select {
			case sub.Ch <- notif:
			default:
			}
		}
	}
}

// Subscribe registers a subscriber for a dataset ("" for all datasets).
// Filters are partition path prefixes such as "event_type=click"; a
// notification matches when its partition lies under any of them, and no
// filters match everything.
func (n *Notifier) Subscribe(dataset string, filters ...string) (*Subscriber, error) {
	parsed := make([][]layout.Segment, 0, len(filters))
	for _, f := range filters {
		segs, err := layout.Parse(f)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, segs)
	}

	sub := &Subscriber{
		ID:      uuid.NewString(),
		Dataset: dataset,
		Filters: parsed,
		Ch:      make(chan Notification, n.bufferSize),
	}
	n.mu.Lock()
	n.subscribers[sub.ID] = sub
	n.mu.Unlock()
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channel. No publish is
// in flight to the channel once it is closed.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subscribers[id]; ok {
		delete(n.subscribers, id)
		close(sub.Ch)
	}
}

func (s *Subscriber) matches(dataset string, partition []layout.Segment) bool {
	if s.Dataset != "" && s.Dataset != dataset {
		return false
	}
	if len(s.Filters) == 0 {
		return true
	}
	for _, f := range s.Filters {
		if layout.HasPrefix(partition, f) {
			return true
		}
	}
	return false
}
