package bytecode

import "fmt"

// Ref is one edge of the decision diagram. A ref is either a terminal
// (evaluation ends with a boolean outcome), a result reference (run that
// result's instruction body), or a node index (keep traversing).
type Ref int32

const (
	// RefFalse is the FALSE terminal: no rule matched.
	RefFalse Ref = -1

	// RefTrue is the TRUE terminal.
	RefTrue Ref = -2

	// resultBase offsets result references clear of any node index.
	resultBase = 100_000_000
)

// ResultRef encodes a reference to result index i.
func ResultRef(i int) Ref {
	return Ref(resultBase + i)
}

// IsTerminal reports whether r is a boolean terminal.
func (r Ref) IsTerminal() bool {
	return r == RefFalse || r == RefTrue
}

// IsResult reports whether r points at a result body.
func (r Ref) IsResult() bool {
	return r >= resultBase
}

// ResultIndex returns the result index of a result reference.
// Only meaningful when IsResult is true.
func (r Ref) ResultIndex() int {
	return int(r - resultBase)
}

// NodeIndex returns the node index of a node reference.
// Only meaningful when r is neither a terminal nor a result reference.
func (r Ref) NodeIndex() int {
	return int(r)
}

// String renders a ref for diagnostics: FALSE, TRUE, R<i> or N<i>.
func (r Ref) String() string {
	switch {
	case r == RefFalse:
		return "FALSE"
	case r == RefTrue:
		return "TRUE"
	case r.IsResult():
		return fmt.Sprintf("R%d", r.ResultIndex())
	default:
		return fmt.Sprintf("N%d", r.NodeIndex())
	}
}

// Node is one decision point: evaluate the condition at Condition and
// continue at High when it holds, Low otherwise. Nodes form a DAG, which is
// what lets rule sets share sub-conditions instead of re-testing them on
// every tree branch.
type Node struct {
	Condition int32
	High      Ref
	Low       Ref
}

// checkRef validates that r is usable given the program's node, result and
// condition counts.
func checkRef(r Ref, nodeCount, resultCount int) error {
	switch {
	case r.IsTerminal():
		return nil
	case r.IsResult():
		if r.ResultIndex() >= resultCount {
			return NewFormatError(ErrCodeBadOffsets, "BDD result reference %s out of range (%d results)", r, resultCount)
		}
		return nil
	case r < 0:
		return NewFormatError(ErrCodeBadOffsets, "invalid BDD reference %d", int32(r))
	default:
		if r.NodeIndex() >= nodeCount {
			return NewFormatError(ErrCodeBadOffsets, "BDD node reference %s out of range (%d nodes)", r, nodeCount)
		}
		return nil
	}
}
