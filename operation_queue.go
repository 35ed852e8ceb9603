package depot

import (
	"github.com/rotisserie/eris"
)

type operationType int

const (
	opCreate operationType = iota
	opDestroy
	opAddComponent
	opRemoveComponent
	opNoop
)

type operation struct {
	typ      operationType
	amount   int
	comps    []Component
	entities []Entity
}

// opQueue buffers structural commands issued while the world is locked.
// Replay order is creates, then component changes, then destroys.
type opQueue struct {
	createOps      []operation
	componentOps   []operation
	destroyOps     []operation
	pendingDestroy map[Entity]struct{}
}

func newOpQueue() opQueue {
	return opQueue{
		pendingDestroy: make(map[Entity]struct{}),
	}
}

func (q *opQueue) len() int {
	return len(q.createOps) + len(q.componentOps) + len(q.destroyOps)
}

func (q *opQueue) enqueueCreate(amount int, comps []Component) {
	q.createOps = append(q.createOps, operation{
		typ:    opCreate,
		amount: amount,
		comps:  append([]Component(nil), comps...),
	})
}

func (q *opQueue) enqueueDestroy(entities []Entity) {
	var fresh []Entity
	for _, e := range entities {
		if _, queued := q.pendingDestroy[e]; queued {
			continue
		}
		q.pendingDestroy[e] = struct{}{}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return
	}
	// component changes to destroyed entities are dropped
	for i := range q.componentOps {
		if _, doomed := q.pendingDestroy[q.componentOps[i].entities[0]]; doomed {
			q.componentOps[i].typ = opNoop
		}
	}
	q.destroyOps = append(q.destroyOps, operation{typ: opDestroy, entities: fresh})
}

func (q *opQueue) enqueueComponentOp(typ operationType, e Entity, comp Component) {
	if _, doomed := q.pendingDestroy[e]; doomed {
		return
	}
	q.componentOps = append(q.componentOps, operation{
		typ:      typ,
		entities: []Entity{e},
		comps:    []Component{comp},
	})
}

func (q *opQueue) reset() {
	q.createOps = q.createOps[:0]
	q.componentOps = q.componentOps[:0]
	q.destroyOps = q.destroyOps[:0]
	clear(q.pendingDestroy)
}

func (w *World) processOperationQueue() error {
	if w.opQueue.len() == 0 {
		return nil
	}
	defer w.opQueue.reset()

	for _, op := range w.opQueue.createOps {
		if _, err := w.NewEntities(op.amount, op.comps...); err != nil {
			return eris.Wrap(err, "failed to process queued entity creation")
		}
	}

	for _, op := range w.opQueue.componentOps {
		e := op.entities[0]
		// entities destroyed before the queue ran are skipped
		if !w.Exists(e) {
			continue
		}
		var err error
		switch op.typ {
		case opAddComponent:
			err = w.AddComponent(e, op.comps[0])
			if _, exists := err.(ComponentExistsError); exists {
				err = nil
			}
		case opRemoveComponent:
			err = w.RemoveComponent(e, op.comps[0])
			if _, missing := err.(ComponentNotFoundError); missing {
				err = nil
			}
		}
		if err != nil {
			return eris.Wrap(err, "failed to process queued component change")
		}
	}

	for _, op := range w.opQueue.destroyOps {
		var alive []Entity
		for _, e := range op.entities {
			if w.Exists(e) {
				alive = append(alive, e)
			}
		}
		if err := w.DestroyEntities(alive...); err != nil {
			return eris.Wrap(err, "failed to process queued destroy")
		}
	}

	w.logger.Debug().
		Int("creates", len(w.opQueue.createOps)).
		Int("component_changes", len(w.opQueue.componentOps)).
		Int("destroys", len(w.opQueue.destroyOps)).
		Msg("deferred commands replayed")
	return nil
}

// EnqueueNewEntities creates entities now, or after Unlock when locked.
func (w *World) EnqueueNewEntities(n int, components ...Component) error {
	if !w.Locked() {
		if _, err := w.NewEntities(n, components...); err != nil {
			return eris.Wrap(err, "failed to create entities directly")
		}
		return nil
	}
	for _, c := range components {
		w.registry.register(c)
	}
	w.opQueue.enqueueCreate(n, components)
	return nil
}

func (w *World) EnqueueDestroyEntities(entities ...Entity) error {
	if !w.Locked() {
		return w.DestroyEntities(entities...)
	}
	w.opQueue.enqueueDestroy(entities)
	return nil
}

func (w *World) EnqueueAddComponent(e Entity, c Component) error {
	if !w.Locked() {
		return w.AddComponent(e, c)
	}
	w.opQueue.enqueueComponentOp(opAddComponent, e, c)
	return nil
}

func (w *World) EnqueueRemoveComponent(e Entity, c Component) error {
	if !w.Locked() {
		return w.RemoveComponent(e, c)
	}
	w.opQueue.enqueueComponentOp(opRemoveComponent, e, c)
	return nil
}
