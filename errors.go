package depot

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	ErrEntityDoesNotExist        = eris.New("entity does not exist")
	ErrRequireExactlyOneMatch    = eris.New("query must match exactly one entity")
	ErrReadOnlyHandle            = eris.New("write access requested through a read-only handle")
	ErrStaleChunk                = eris.New("chunk handle invalidated by a structural change")
	ErrDuplicateComponentInQuery = eris.New("duplicate component in query")
	ErrComponentNotInQuery       = eris.New("component is not part of the query")
	ErrLengthMismatch            = eris.New("array length does not match query entity count")
	ErrBuiltinComponent          = eris.New("built-in component cannot be added or removed")
	ErrJobDependencyFailed       = eris.New("job dependency failed")
	ErrWrongCategory             = eris.New("component category does not support this operation")
)

type LockedStorageError struct{}

func (e LockedStorageError) Error() string {
	return "world is currently locked"
}

type ComponentExistsError struct {
	Component Component
}

func (e ComponentExistsError) Error() string {
	return fmt.Sprintf("component already exists on entity: %s", e.Component.Info().Name)
}

type ComponentNotFoundError struct {
	Component Component
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component does not exist on entity: %s", e.Component.Info().Name)
}

// DuplicateComponentInQueryError is returned when a query description names
// the same component more than once across All, Any and None.
type DuplicateComponentInQueryError struct {
	Component Component
}

func (e DuplicateComponentInQueryError) Error() string {
	return fmt.Sprintf("query contains a filter with duplicate component type %s; "+
		"a component may appear only once across all/any/none", e.Component.Info().Name)
}

func (e DuplicateComponentInQueryError) Is(target error) bool {
	return target == ErrDuplicateComponentInQuery
}

type ArchetypeTooLargeError struct {
	RowSize   int
	ChunkSize int
}

func (e ArchetypeTooLargeError) Error() string {
	return fmt.Sprintf("archetype row of %d bytes does not fit a %d byte chunk", e.RowSize, e.ChunkSize)
}

// CapacityExhaustedError is raised as a panic value when the chunk block pool
// has no block left to hand out.
type CapacityExhaustedError struct {
	MaxChunks int
}

func (e CapacityExhaustedError) Error() string {
	return fmt.Sprintf("chunk memory exhausted: all %d blocks in use", e.MaxChunks)
}

type FilterLimitError struct {
	Kind  string
	Limit int
}

func (e FilterLimitError) Error() string {
	return fmt.Sprintf("too many %s filters: at most %d are supported", e.Kind, e.Limit)
}
