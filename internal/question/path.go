package question

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PathSeparator joins the indices of a path.
const PathSeparator = "_"

// ErrPathNotFound is returned when a path does not address an existing node.
var ErrPathNotFound = errors.New("question path not found")

// Path addresses a node by zero-based child indices. The first index selects a
// top-level question, every further index a sub-question.
type Path []int

// ParsePath parses "0", "0_2", "0_2_1" and so on.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("empty question path")
	}
	parts := strings.Split(s, PathSeparator)
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || part != strconv.Itoa(n) {
			return nil, fmt.Errorf("invalid question path %q: bad segment %q", s, part)
		}
		p = append(p, n)
	}
	return p, nil
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, PathSeparator)
}

// Child returns a new path one level below p.
func (p Path) Child(i int) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = i
	return out
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

func (p Path) orRoot() string {
	if len(p) == 0 {
		return "root"
	}
	return p.String()
}

// Resolve walks p through roots and the subQuestions of each visited node. The
// returned pointer aliases the node inside roots. Out-of-range segments report
// false.
func Resolve(roots []Question, p Path) (*Question, bool) {
	if len(p) == 0 {
		return nil, false
	}
	level := roots
	var node *Question
	for _, idx := range p {
		if idx < 0 || idx >= len(level) {
			return nil, false
		}
		node = &level[idx]
		level = node.SubQuestions
	}
	return node, true
}

// Replace overwrites the node at p with q.
func Replace(roots []Question, p Path, q Question) error {
	node, ok := Resolve(roots, p)
	if !ok {
		return fmt.Errorf("replace %s: %w", p, ErrPathNotFound)
	}
	*node = q
	return nil
}

// Remove deletes the node at p and returns the updated forest. Siblings after
// the removed node shift down by one.
func Remove(roots []Question, p Path) ([]Question, error) {
	if len(p) == 0 {
		return roots, fmt.Errorf("remove: %w", ErrPathNotFound)
	}
	last := p[len(p)-1]
	if len(p) == 1 {
		if last < 0 || last >= len(roots) {
			return roots, fmt.Errorf("remove %s: %w", p, ErrPathNotFound)
		}
		return append(roots[:last:last], roots[last+1:]...), nil
	}
	parent, ok := Resolve(roots, p.Parent())
	if !ok || last < 0 || last >= len(parent.SubQuestions) {
		return roots, fmt.Errorf("remove %s: %w", p, ErrPathNotFound)
	}
	subs := parent.SubQuestions
	parent.SubQuestions = append(subs[:last:last], subs[last+1:]...)
	return roots, nil
}
