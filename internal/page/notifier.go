package page

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// Notification kinds.
const (
	KindSuccess = "success"
	KindError   = "error"
)

// Notification is a transient message shown after an operation.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier keeps the auto-expiring notifications of one page. At most
// maxActive are kept; the oldest are dropped first.
type Notifier struct {
	ttl       time.Duration
	maxActive int
	metrics   *observability.Metrics
	now       func() time.Time

	mu    sync.Mutex
	items []Notification
}

// NewNotifier creates a Notifier. A zero ttl uses 4s and a zero maxActive
// keeps 5 notifications.
func NewNotifier(ttl time.Duration, maxActive int, metrics *observability.Metrics) *Notifier {
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	if maxActive <= 0 {
		maxActive = 5
	}
	return &Notifier{ttl: ttl, maxActive: maxActive, metrics: metrics, now: time.Now}
}

// Success queues a success notification.
func (n *Notifier) Success(msg string) Notification { return n.push(KindSuccess, msg) }

// Error queues an error notification.
func (n *Notifier) Error(msg string) Notification { return n.push(KindError, msg) }

// Result queues a notification for an operation result. Empty messages are
// not shown.
func (n *Notifier) Result(res model.Result) {
	switch {
	case res.Success && res.Message != "":
		n.Success(res.Message)
	case !res.Success && res.Error != "":
		n.Error(res.Error)
	}
}

func (n *Notifier) push(kind, msg string) Notification {
	now := n.now()
	item := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   msg,
		CreatedAt: now,
		ExpiresAt: now.Add(n.ttl),
	}

	n.mu.Lock()
	n.items = append(n.pruneLocked(now), item)
	if over := len(n.items) - n.maxActive; over > 0 {
		n.items = append([]Notification(nil), n.items[over:]...)
	}
	n.mu.Unlock()

	n.metrics.RecordNotification(kind)
	return item
}

// Active returns the notifications that have not expired at now, oldest
// first.
func (n *Notifier) Active(now time.Time) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = n.pruneLocked(now)
	return append([]Notification{}, n.items...)
}

// Dismiss removes a notification before it expires.
func (n *Notifier) Dismiss(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, item := range n.items {
		if item.ID == id {
			n.items = append(n.items[:i:i], n.items[i+1:]...)
			return true
		}
	}
	return false
}

func (n *Notifier) pruneLocked(now time.Time) []Notification {
	kept := n.items[:0]
	for _, item := range n.items {
		if now.Before(item.ExpiresAt) {
			kept = append(kept, item)
		}
	}
	return kept
}
