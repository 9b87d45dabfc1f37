package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/tixgate/eventchat/core"
)

// Entry is a message in the local view of a channel
type Entry struct {
	core.Message
	LocalID string
	Pending bool
}

type typing struct {
	label   string
	expires time.Time
}

// Reconciler merges the optimistic local view of one channel with the
// signals pushed by the server
type Reconciler struct {
	api      Client
	eventID  string
	wallet   string
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries []Entry
	hasMore bool
	typing  map[string]typing
	online  []string
}

func NewReconciler(api Client, eventID, wallet string, typingInterval time.Duration) *Reconciler {
	if typingInterval <= 0 {
		typingInterval = core.DefaultTypingInterval
	}
	return &Reconciler{
		api:      api,
		eventID:  eventID,
		wallet:   wallet,
		interval: typingInterval,
		now:      time.Now,
		typing:   make(map[string]typing),
	}
}

// Load replaces the view with the newest page of the channel
func (r *Reconciler) Load(ctx context.Context) error {
	page, err := r.api.ListMessages(ctx, r.eventID, r.wallet, nil)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pending := slices.DeleteFunc(slices.Clone(r.entries), func(e Entry) bool { return !e.Pending })
	r.entries = r.entries[:0]
	for _, message := range page.Messages {
		r.entries = append(r.entries, Entry{Message: message})
	}
	r.entries = append(r.entries, pending...)
	r.hasMore = page.HasMore

	return nil
}

// LoadOlder prepends the page preceding the oldest loaded message
func (r *Reconciler) LoadOlder(ctx context.Context) (bool, error) {
	r.mu.Lock()
	var before *time.Time
	for _, entry := range r.entries {
		if !entry.Pending {
			cursor := entry.CreatedAt
			before = &cursor
			break
		}
	}
	hasMore := r.hasMore
	r.mu.Unlock()

	if before == nil || !hasMore {
		return false, nil
	}

	page, err := r.api.ListMessages(ctx, r.eventID, r.wallet, before)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	older := make([]Entry, 0, len(page.Messages)+len(r.entries))
	for _, message := range page.Messages {
		if r.indexOf(message.ID) < 0 {
			older = append(older, Entry{Message: message})
		}
	}
	r.entries = append(older, r.entries...)
	r.hasMore = page.HasMore

	return page.HasMore, nil
}

// Send appends a pending entry and replaces it in place once the server confirms.
// The pending entry is removed when the send fails.
func (r *Reconciler) Send(ctx context.Context, content string, replyTo *string) (core.Message, error) {
	localID := xid.New().String()

	r.mu.Lock()
	r.entries = append(r.entries, Entry{
		Message: core.Message{
			ID:        localID,
			EventID:   r.eventID,
			Author:    r.wallet,
			Content:   content,
			CreatedAt: r.now(),
			ReplyTo:   replyTo,
		},
		LocalID: localID,
		Pending: true,
	})
	r.mu.Unlock()

	message, err := r.api.SendMessage(ctx, r.eventID, r.wallet, content, replyTo)

	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.entries, func(e Entry) bool { return e.LocalID == localID })
	if i < 0 {
		return message, err
	}
	if err != nil || r.indexOf(message.ID) >= 0 {
		r.entries = slices.Delete(r.entries, i, i+1)
		return message, err
	}
	r.entries[i] = Entry{Message: message, LocalID: localID}

	return message, nil
}

// Edit applies new content once the server confirms
func (r *Reconciler) Edit(ctx context.Context, messageID, content string) error {
	message, err := r.api.EditMessage(ctx, messageID, r.wallet, content)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.update(message)

	return nil
}

// Delete deletes a message and applies the result once the server confirms
func (r *Reconciler) Delete(ctx context.Context, messageID string, mode core.DeleteMode) error {
	err := r.api.DeleteMessage(ctx, messageID, r.wallet, mode)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(messageID)
	if i < 0 {
		return nil
	}
	message := r.entries[i].Message
	switch mode {
	case core.DeleteModeForMe:
		message.DeletedFor = append(slices.Clone(message.DeletedFor), r.wallet)
	case core.DeleteModeForEveryone:
		now := r.now()
		message.DeletedAt = &now
	}
	r.update(message)

	return nil
}

// Apply merges one server signal into the view
func (r *Reconciler) Apply(signal core.Signal) {
	if signal.EventID != r.eventID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch signal.Type {
	case core.SignalInsert:
		if signal.Message == nil || core.SameWallet(signal.Message.Author, r.wallet) {
			return
		}
		if r.indexOf(signal.Message.ID) >= 0 {
			return
		}
		r.entries = append(r.entries, Entry{Message: *signal.Message})
		delete(r.typing, signal.Message.Author)
	case core.SignalUpdate:
		if signal.Message == nil {
			return
		}
		r.update(*signal.Message)
	case core.SignalTyping:
		if signal.Wallet == "" || core.SameWallet(signal.Wallet, r.wallet) {
			return
		}
		r.typing[signal.Wallet] = typing{label: signal.Label, expires: r.now().Add(r.interval)}
	case core.SignalPresence:
		r.online = slices.Clone(signal.Online)
	}
}

// Run applies signals until the channel closes or ctx is done
func (r *Reconciler) Run(ctx context.Context, signals <-chan core.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal, ok := <-signals:
			if !ok {
				return
			}
			r.Apply(signal)
		}
	}
}

// Messages returns a snapshot of the view in display order
func (r *Reconciler) Messages() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

// HasMore reports whether older history exists
func (r *Reconciler) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasMore
}

// Typing returns the labels of users currently typing
func (r *Reconciler) Typing() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	maps.DeleteFunc(r.typing, func(_ string, t typing) bool { return !now.Before(t.expires) })

	wallets := make([]string, 0, len(r.typing))
	for wallet := range r.typing {
		wallets = append(wallets, wallet)
	}
	slices.Sort(wallets)

	labels := make([]string, len(wallets))
	for i, wallet := range wallets {
		labels[i] = r.typing[wallet].label
	}
	return labels
}

// Online returns the wallets currently connected to the channel
func (r *Reconciler) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.online)
}

func (r *Reconciler) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.online)
}

func (r *Reconciler) indexOf(messageID string) int {
	return slices.IndexFunc(r.entries, func(e Entry) bool { return !e.Pending && e.ID == messageID })
}

// update must be called with mu held
func (r *Reconciler) update(message core.Message) {
	i := r.indexOf(message.ID)
	if i < 0 {
		return
	}

	current := &r.entries[i]
	current.Content = message.Content
	current.EditedAt = message.EditedAt
	current.DeletedAt = message.DeletedAt
	current.DeletedFor = message.DeletedFor
	if current.IsDeleted() {
		current.Content = core.DeletedPlaceholder
	}

	if current.IsDeletedFor(r.wallet) {
		r.entries = slices.Delete(r.entries, i, i+1)
		return
	}

	preview := current.Preview()
	for j := range r.entries {
		reply := r.entries[j].Reply
		if reply != nil && reply.ID == message.ID {
			r.entries[j].Reply = preview
		}
	}
}
