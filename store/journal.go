package store

import (
	"sort"

	"winkwink_server/models"
)

type Op int

const (
	OpRead Op = iota
	OpPut
	OpDelete
)

// Entry is what a unit of work knows about one record: whether it existed and
// at which version when first observed, and the pending operation on it.
type Entry[T any] struct {
	Key         string
	Found       bool
	ReadVersion int64
	Value       T
	Op          Op
}

// NextVersion is the version the record carries once the entry commits
func (e *Entry[T]) NextVersion() int64 {
	if !e.Found {
		return 1
	}
	return e.ReadVersion + 1
}

// Journal buffers the reads and writes of one optimistic unit of work. Backends
// without native interactive transactions (memory, DynamoDB) replay it on commit.
type Journal struct {
	users         map[string]*Entry[*models.User]
	conversations map[string]*Entry[*models.Conversation]
	messages      []*models.Message
	done          bool
}

func NewJournal() *Journal {
	return &Journal{
		users:         map[string]*Entry[*models.User]{},
		conversations: map[string]*Entry[*models.Conversation]{},
	}
}

func (j *Journal) Done() bool { return j.done }

// Finish marks the journal as committed or rolled back
func (j *Journal) Finish() { j.done = true }

// LookupUser answers from the journal. known is false when the backend must be asked.
func (j *Journal) LookupUser(id string) (u *models.User, known bool) {
	e, ok := j.users[id]
	if !ok {
		return nil, false
	}
	if e.Op == OpDelete || (e.Op == OpRead && !e.Found) {
		return nil, true
	}
	return e.Value.Clone(), true
}

// ObserveUser records a backend read; u is nil when the user does not exist
func (j *Journal) ObserveUser(id string, u *models.User) {
	if _, ok := j.users[id]; ok {
		return
	}
	e := &Entry[*models.User]{Key: id, Op: OpRead}
	if u != nil {
		e.Found = true
		e.ReadVersion = u.Version
		e.Value = u.Clone()
	}
	j.users[id] = e
}

func (j *Journal) PutUser(u *models.User) error {
	if j.done {
		return ErrTxDone
	}
	e := j.userEntry(u)
	e.Value = u
	e.Op = OpPut
	return nil
}

func (j *Journal) DeleteUser(u *models.User) error {
	if j.done {
		return ErrTxDone
	}
	e := j.userEntry(u)
	e.Value = u
	e.Op = OpDelete
	return nil
}

func (j *Journal) userEntry(u *models.User) *Entry[*models.User] {
	e, ok := j.users[u.ID]
	if !ok {
		e = &Entry[*models.User]{Key: u.ID, Found: u.Version > 0, ReadVersion: u.Version}
		j.users[u.ID] = e
	}
	return e
}

func (j *Journal) LookupConversation(pairKey string) (c *models.Conversation, known bool) {
	e, ok := j.conversations[pairKey]
	if !ok {
		return nil, false
	}
	if e.Op == OpDelete || (e.Op == OpRead && !e.Found) {
		return nil, true
	}
	return e.Value.Clone(), true
}

func (j *Journal) ObserveConversation(pairKey string, c *models.Conversation) {
	if _, ok := j.conversations[pairKey]; ok {
		return
	}
	e := &Entry[*models.Conversation]{Key: pairKey, Op: OpRead}
	if c != nil {
		e.Found = true
		e.ReadVersion = c.Version
		e.Value = c.Clone()
	}
	j.conversations[pairKey] = e
}

func (j *Journal) PutConversation(c *models.Conversation) error {
	if j.done {
		return ErrTxDone
	}
	e := j.conversationEntry(c)
	e.Value = c
	e.Op = OpPut
	return nil
}

func (j *Journal) DeleteConversation(c *models.Conversation) error {
	if j.done {
		return ErrTxDone
	}
	e := j.conversationEntry(c)
	e.Value = c
	e.Op = OpDelete
	return nil
}

func (j *Journal) conversationEntry(c *models.Conversation) *Entry[*models.Conversation] {
	e, ok := j.conversations[c.PairKey]
	if !ok {
		e = &Entry[*models.Conversation]{Key: c.PairKey, Found: c.Version > 0, ReadVersion: c.Version}
		j.conversations[c.PairKey] = e
	}
	return e
}

func (j *Journal) AddMessage(m *models.Message) error {
	if j.done {
		return ErrTxDone
	}
	j.messages = append(j.messages, m)
	return nil
}

// Users returns the user entries ordered by key
func (j *Journal) Users() []*Entry[*models.User] {
	out := make([]*Entry[*models.User], 0, len(j.users))
	for _, e := range j.users {
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out
}

// Conversations returns the conversation entries ordered by key
func (j *Journal) Conversations() []*Entry[*models.Conversation] {
	out := make([]*Entry[*models.Conversation], 0, len(j.conversations))
	for _, e := range j.conversations {
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out
}

func (j *Journal) Messages() []*models.Message { return j.messages }

// ReadOnly reports whether nothing was written
func (j *Journal) ReadOnly() bool {
	if len(j.messages) > 0 {
		return false
	}
	for _, e := range j.users {
		if e.Op != OpRead {
			return false
		}
	}
	for _, e := range j.conversations {
		if e.Op != OpRead {
			return false
		}
	}
	return true
}
