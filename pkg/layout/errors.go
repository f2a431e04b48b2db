package layout

import "errors"

// ============================================================
// Errors
// ============================================================

var (
	// ErrDegeneratePlan - план нулевого размера (ещё не загружен).
	ErrDegeneratePlan = errors.New("layout: degenerate plan size")

	// ErrNoViewport - вьюпорт не рассчитан, проекция невозможна.
	ErrNoViewport = errors.New("layout: viewport not available")

	// ErrDuplicateObject - объект с таким id уже размещён.
	ErrDuplicateObject = errors.New("layout: duplicate object id")

	// ErrUnknownKind - тег вида виджета вне фиксированного набора.
	ErrUnknownKind = errors.New("layout: unknown object kind")
)
