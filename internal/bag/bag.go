// Package bag implements named, persisted groups of documents with
// saved/unsaved/removed partitions and save, reload and undo semantics.
package bag

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/looplab/fsm"
	"github.com/tiendc/go-deepcopy"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
	"github.com/arkilian/nanostore/internal/flatten"
	"github.com/arkilian/nanostore/pkg/types"
)

// TypeTag is the type tag bags are stored under.
const TypeTag = "NSFNanoBag"

// Attributes of the stored bag document.
const (
	AttributeName = "Name"
	AttributeKeys = "ObjectKeys"
)

// Bag states and events.
const (
	StateClean = "clean"
	StateDirty = "dirty"

	eventModify = "modify"
	eventCommit = "commit"
)

// Bag is a named collection of document references. A member is in exactly
// one partition: saved (persisted, unchanged), unsaved (added or modified)
// or removed (marked for deletion). A nil document in a partition is a
// deflated placeholder.
type Bag struct {
	key     string
	name    string
	session string

	saved   map[string]types.Document
	unsaved map[string]types.Document
	removed map[string]types.Document

	// persisted is the membership as of the last save or reload.
	persisted map[string]bool

	state *fsm.FSM
}

func newState() *fsm.FSM {
	return fsm.NewFSM(
		StateClean,
		fsm.Events{
			{Name: eventModify, Src: []string{StateClean, StateDirty}, Dst: StateDirty},
			{Name: eventCommit, Src: []string{StateClean, StateDirty}, Dst: StateClean},
		},
		fsm.Callbacks{},
	)
}

func newBag(key, name string) *Bag {
	return &Bag{
		key:       key,
		name:      name,
		saved:     make(map[string]types.Document),
		unsaved:   make(map[string]types.Document),
		removed:   make(map[string]types.Document),
		persisted: make(map[string]bool),
		state:     newState(),
	}
}

// New creates an unsaved bag holding docs.
func New(name string, docs ...types.Document) (*Bag, error) {
	b := newBag(types.NewKey(), name)
	if err := b.AddAll(docs...); err != nil {
		return nil, err
	}
	return b, nil
}

// Construct rebuilds a bag from its stored attributes. Members start as
// deflated placeholders in the saved partition. It has the shape of
// types.Constructor.
func Construct(key string, attrs map[string]any) (types.Document, error) {
	name, _ := attrs[AttributeName].(string)
	b := newBag(key, name)

	switch keys := attrs[AttributeKeys].(type) {
	case nil:
	case []any:
		for i, k := range keys {
			s, ok := k.(string)
			if !ok {
				return nil, storeerrors.NewConfigurationError(storeerrors.CodeNonConforming,
					fmt.Sprintf("bag %s: member %d is %T, not a key", key, i, k))
			}
			b.saved[s] = nil
			b.persisted[s] = true
		}
	default:
		return nil, storeerrors.NewConfigurationError(storeerrors.CodeNonConforming,
			fmt.Sprintf("bag %s: %s is %T, not a list", key, AttributeKeys, keys))
	}
	return b, nil
}

// Key returns the bag identifier.
func (b *Bag) Key() string { return b.key }

// TypeTag returns TypeTag.
func (b *Bag) TypeTag() string { return TypeTag }

// Snapshot returns the stored form of the bag: its name and member keys.
func (b *Bag) Snapshot() map[string]any {
	keys := b.Keys()
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	return map[string]any{AttributeName: b.name, AttributeKeys: members}
}

func (b *Bag) SortRoot() any { return b.Snapshot() }

// BindSession binds the bag to a store session.
func (b *Bag) BindSession(sessionID string) { b.session = sessionID }

// Session returns the store session the bag is bound to.
func (b *Bag) Session() string { return b.session }

func (b *Bag) Name() string { return b.name }

// SetName renames the bag. The new name is persisted by the next save.
func (b *Bag) SetName(name string) { b.name = name }

// Keys returns the member keys (saved and unsaved) in sorted order.
func (b *Bag) Keys() []string {
	keys := make([]string, 0, len(b.saved)+len(b.unsaved))
	for k := range b.saved {
		keys = append(keys, k)
	}
	for k := range b.unsaved {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of members.
func (b *Bag) Count() int { return len(b.saved) + len(b.unsaved) }

// Contains reports whether key is a member.
func (b *Bag) Contains(key string) bool {
	_, saved := b.saved[key]
	_, unsaved := b.unsaved[key]
	return saved || unsaved
}

// Saved returns a copy of the saved partition.
func (b *Bag) Saved() map[string]types.Document { return copyPartition(b.saved) }

// Unsaved returns a copy of the unsaved partition.
func (b *Bag) Unsaved() map[string]types.Document { return copyPartition(b.unsaved) }

// Removed returns a copy of the removed partition.
func (b *Bag) Removed() map[string]types.Document { return copyPartition(b.removed) }

func copyPartition(p map[string]types.Document) map[string]types.Document {
	out := make(map[string]types.Document, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// HasUnsavedChanges reports whether the bag is dirty.
func (b *Bag) HasUnsavedChanges() bool { return b.state.Current() == StateDirty }

// Equal reports whether both bags have the same key, name and members.
func (b *Bag) Equal(other *Bag) bool {
	if other == nil || b.key != other.key || b.name != other.name {
		return false
	}
	mine, theirs := b.Keys(), other.Keys()
	if len(mine) != len(theirs) {
		return false
	}
	for i := range mine {
		if mine[i] != theirs[i] {
			return false
		}
	}
	return true
}

func (b *Bag) String() string {
	return fmt.Sprintf("Bag{key=%s, name=%q, saved=%d, unsaved=%d, removed=%d, state=%s}",
		b.key, b.name, len(b.saved), len(b.unsaved), len(b.removed), b.state.Current())
}

func (b *Bag) fire(ctx context.Context, event string) error {
	err := b.state.Event(ctx, event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return fmt.Errorf("bag %s: %s: %w", b.key, event, err)
	}
	return nil
}

// settle moves the state machine to match the partitions.
func (b *Bag) settle(ctx context.Context) error {
	if len(b.unsaved) > 0 || len(b.removed) > 0 {
		return b.fire(ctx, eventModify)
	}
	return b.fire(ctx, eventCommit)
}

// Add puts doc in the unsaved partition, assigning a key if doc accepts
// one. A document holding an unsupported value is rejected here rather than
// at Save.
func (b *Bag) Add(doc types.Document) error {
	if doc == nil {
		return storeerrors.NewConfigurationError(storeerrors.CodeNonConforming, "bag: cannot add a nil document")
	}
	key := doc.Key()
	if key == "" {
		assigner, ok := doc.(types.KeyAssigner)
		if !ok {
			return storeerrors.NewProtocolViolation(storeerrors.CodeMissingKey,
				fmt.Sprintf("bag: %s document has no key and cannot be assigned one", types.TypeTagOf(doc)))
		}
		assigner.AssignKey(types.NewKey())
		key = doc.Key()
	}
	if _, _, err := flatten.Flatten(doc); err != nil {
		return err
	}
	delete(b.saved, key)
	delete(b.removed, key)
	b.unsaved[key] = doc
	return b.fire(context.Background(), eventModify)
}

// AddAll adds every document, stopping at the first failure.
func (b *Bag) AddAll(docs ...types.Document) error {
	for _, doc := range docs {
		if err := b.Add(doc); err != nil {
			return err
		}
	}
	return nil
}

// Remove marks doc for removal.
func (b *Bag) Remove(doc types.Document) error {
	if doc == nil {
		return storeerrors.NewConfigurationError(storeerrors.CodeNonConforming, "bag: cannot remove a nil document")
	}
	return b.RemoveWithKey(doc.Key())
}

// RemoveWithKey marks the member with key for removal. A member that was
// never persisted is discarded instead. Unknown keys are ignored.
func (b *Bag) RemoveWithKey(key string) error {
	if key == "" {
		return storeerrors.NewProtocolViolation(storeerrors.CodeMissingKey, "bag: cannot remove an empty key")
	}
	doc, inSaved := b.saved[key]
	if !inSaved {
		var inUnsaved bool
		doc, inUnsaved = b.unsaved[key]
		if !inUnsaved {
			return nil
		}
	}
	delete(b.saved, key)
	delete(b.unsaved, key)
	if b.persisted[key] {
		b.removed[key] = doc
	}
	return b.settle(context.Background())
}

// RemoveWithKeys removes every key.
func (b *Bag) RemoveWithKeys(keys ...string) error {
	for _, k := range keys {
		if err := b.RemoveWithKey(k); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAll removes every member.
func (b *Bag) RemoveAll() error {
	return b.RemoveWithKeys(b.Keys()...)
}

// Save persists unsaved members, deletes removed ones and writes the bag
// document in one transaction. On failure the partitions are untouched so
// the save can be retried.
func (b *Bag) Save(ctx context.Context) error {
	backend, err := lookup(b.session)
	if err != nil {
		return err
	}

	put := make([]types.Document, 0, len(b.unsaved))
	for _, k := range sortedKeys(b.unsaved) {
		if doc := b.unsaved[k]; doc != nil {
			put = append(put, doc)
		}
	}
	del := sortedKeys(b.removed)

	if err := backend.SaveBag(ctx, b, put, del); err != nil {
		return err
	}

	for k, doc := range b.unsaved {
		b.saved[k] = doc
	}
	b.unsaved = make(map[string]types.Document)
	b.removed = make(map[string]types.Document)
	b.persisted = make(map[string]bool, len(b.saved))
	for k := range b.saved {
		b.persisted[k] = true
	}
	return b.fire(ctx, eventCommit)
}

// Reload re-reads the bag and its saved members from storage. Unsaved and
// removed members are kept on top of the refreshed state.
func (b *Bag) Reload(ctx context.Context) error {
	backend, err := lookup(b.session)
	if err != nil {
		return err
	}

	stored, err := backend.ObjectsWithKeys(ctx, []string{b.key})
	if err != nil {
		return err
	}
	persisted := make(map[string]bool)
	name := b.name
	if doc, ok := stored[b.key]; ok {
		fresh, err := Construct(b.key, doc.Snapshot())
		if err != nil {
			return err
		}
		fb := fresh.(*Bag)
		name = fb.name
		persisted = fb.persisted
	}

	var fetch []string
	for k := range persisted {
		if _, local := b.unsaved[k]; local {
			continue
		}
		if _, local := b.removed[k]; local {
			continue
		}
		fetch = append(fetch, k)
	}
	sort.Strings(fetch)
	members, err := backend.ObjectsWithKeys(ctx, fetch)
	if err != nil {
		return err
	}

	saved := make(map[string]types.Document, len(fetch))
	for _, k := range fetch {
		saved[k] = members[k]
	}
	for k := range b.removed {
		if !persisted[k] {
			delete(b.removed, k)
		}
	}

	b.name = name
	b.saved = saved
	b.persisted = persisted
	return b.settle(ctx)
}

// Undo discards unsaved and removed changes, restoring the persisted
// membership. Modified members come back as placeholders so the next
// Inflate reads their persisted version.
func (b *Bag) Undo(ctx context.Context) error {
	var checkpoint map[string]bool
	if err := deepcopy.Copy(&checkpoint, &b.persisted); err != nil {
		return fmt.Errorf("bag %s: checkpoint membership: %w", b.key, err)
	}

	saved := make(map[string]types.Document, len(checkpoint))
	for k := range checkpoint {
		switch {
		case hasKey(b.saved, k):
			saved[k] = b.saved[k]
		case hasKey(b.removed, k):
			saved[k] = b.removed[k]
		default:
			saved[k] = nil
		}
	}

	b.saved = saved
	b.unsaved = make(map[string]types.Document)
	b.removed = make(map[string]types.Document)
	b.persisted = checkpoint
	return b.fire(ctx, eventCommit)
}

// Deflate replaces saved and removed documents with placeholders. Unsaved
// documents are kept since they are not persisted yet.
func (b *Bag) Deflate() {
	for k := range b.saved {
		b.saved[k] = nil
	}
	for k := range b.removed {
		b.removed[k] = nil
	}
}

// Inflate loads every placeholder from storage.
func (b *Bag) Inflate(ctx context.Context) error {
	var missing []string
	for _, p := range []map[string]types.Document{b.saved, b.unsaved, b.removed} {
		for k, doc := range p {
			if doc == nil {
				missing = append(missing, k)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	backend, err := lookup(b.session)
	if err != nil {
		return err
	}
	sort.Strings(missing)
	docs, err := backend.ObjectsWithKeys(ctx, missing)
	if err != nil {
		return err
	}
	for _, p := range []map[string]types.Document{b.saved, b.unsaved, b.removed} {
		for k, doc := range p {
			if doc == nil {
				if loaded, ok := docs[k]; ok {
					p[k] = loaded
				}
			}
		}
	}
	return nil
}

// IsDeflated reports whether any member is a placeholder.
func (b *Bag) IsDeflated() bool {
	for _, p := range []map[string]types.Document{b.saved, b.unsaved, b.removed} {
		for _, doc := range p {
			if doc == nil {
				return true
			}
		}
	}
	return false
}

func hasKey(p map[string]types.Document, k string) bool {
	_, ok := p[k]
	return ok
}

func sortedKeys(p map[string]types.Document) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
