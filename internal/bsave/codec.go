package bsave

import (
	"bufio"
	"fmt"
	"math"

	"rulecore/internal/atomtab"
	"rulecore/internal/expr"
)

// noNodeRef marks an absent optional expr.Node reference (e.g. an if
// with no else branch) in the serialized expression block.
const noNodeRef = ^uint32(0)

// atomWriter accumulates the global atom index assigned during
// writeAtomTables, consulted by writeNodes for KindConstant references.
type atomWriter struct {
	index map[*atomtab.Atom]uint32
	next  uint32
}

func newAtomWriter() *atomWriter {
	return &atomWriter{index: make(map[*atomtab.Atom]uint32)}
}

func (aw *atomWriter) assign(a *atomtab.Atom) uint32 {
	idx := aw.next
	aw.index[a] = idx
	aw.next++
	return idx
}

func (aw *atomWriter) indexOf(a *atomtab.Atom) (uint32, bool) {
	idx, ok := aw.index[a]
	return idx, ok
}

// writeAtomTables writes the needed-atom tables in atomKindOrder,
// collecting every atom with a non-zero reference count from interner,
// and returns the write-order index assigned to each.
func writeAtomTables(w *bufio.Writer, interner *atomtab.Interner) (*atomWriter, error) {
	aw := newAtomWriter()
	for _, kind := range atomKindOrder {
		var atoms []*atomtab.Atom
		interner.WalkRetained(kind, func(a *atomtab.Atom) { atoms = append(atoms, a) })
		if err := writeU32(w, uint32(len(atoms))); err != nil {
			return nil, err
		}
		for _, a := range atoms {
			aw.assign(a)
			if err := writeAtomPayload(w, kind, a); err != nil {
				return nil, err
			}
		}
	}
	return aw, nil
}

func writeAtomPayload(w *bufio.Writer, kind atomtab.Kind, a *atomtab.Atom) error {
	switch kind {
	case atomtab.KindSymbol, atomtab.KindString, atomtab.KindInstanceName:
		return writeCString(w, a.SymbolText())
	case atomtab.KindFloat:
		return writeU64(w, math.Float64bits(a.FloatValue()))
	case atomtab.KindInteger:
		n, tag := a.IntegerValue()
		if err := writeU64(w, uint64(n)); err != nil {
			return err
		}
		return writeU32(w, uint32(tag))
	case atomtab.KindBitmap:
		return writeBytes(w, a.BitmapBytes())
	case atomtab.KindExternalAddress:
		ptr, tag := a.ExternalAddress()
		if err := writeU64(w, uint64(ptr)); err != nil {
			return err
		}
		return writeU32(w, uint32(tag))
	default:
		return fmt.Errorf("bsave: unhandled atom kind %s in needed-atom table", kind)
	}
}

// readAtomTables is the mirror of writeAtomTables: it re-interns every
// saved atom (retaining it, since a saved atom was by definition needed)
// and returns the same global index ordering writeAtomTables assigned.
func readAtomTables(r *bufio.Reader, interner *atomtab.Interner) ([]*atomtab.Atom, error) {
	var atoms []*atomtab.Atom
	for _, kind := range atomKindOrder {
		n, err := readU32(r)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			a, err := readAtomPayload(r, interner, kind)
			if err != nil {
				return nil, err
			}
			interner.Retain(a)
			atoms = append(atoms, a)
		}
	}
	return atoms, nil
}

func readAtomPayload(r *bufio.Reader, interner *atomtab.Interner, kind atomtab.Kind) (*atomtab.Atom, error) {
	switch kind {
	case atomtab.KindSymbol, atomtab.KindString, atomtab.KindInstanceName:
		text, err := readCString(r)
		if err != nil {
			return nil, err
		}
		return interner.InternSymbol(kind, text), nil
	case atomtab.KindFloat:
		bits, err := readU64(r)
		if err != nil {
			return nil, err
		}
		return interner.InternFloat(math.Float64frombits(bits)), nil
	case atomtab.KindInteger:
		n, err := readU64(r)
		if err != nil {
			return nil, err
		}
		tag, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return interner.InternInteger(int64(n), int32(tag)), nil
	case atomtab.KindBitmap:
		b, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return interner.InternBitmap(b), nil
	case atomtab.KindExternalAddress:
		ptr, err := readU64(r)
		if err != nil {
			return nil, err
		}
		tag, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return interner.InternExternalAddress(uintptr(ptr), int32(tag)), nil
	default:
		return nil, fmt.Errorf("bsave: unhandled atom kind %s in needed-atom table", kind)
	}
}

// collectNodes walks roots in post-order, assigning each distinct *Node
// pointer one index the first time it is reached — this is what gives
// the expression block its "hashed expression" sharing: a rule whose RHS
// and a template default both reference the identical *Node are written
// once and referenced twice.
func collectNodes(roots []*expr.Node) ([]*expr.Node, map[*expr.Node]uint32) {
	order := make([]*expr.Node, 0)
	index := make(map[*expr.Node]uint32)
	var visit func(n *expr.Node)
	visit = func(n *expr.Node) {
		if n == nil {
			return
		}
		if _, ok := index[n]; ok {
			return
		}
		for _, c := range n.Args {
			visit(c)
		}
		visit(n.Var)
		visit(n.Then)
		visit(n.Else)
		visit(n.Body)
		index[n] = uint32(len(order))
		order = append(order, n)
	}
	for _, n := range roots {
		visit(n)
	}
	return order, index
}

// collectFuncNames gathers every distinct function name a KindFuncCall
// node in order refers to, sorted for deterministic output.
func collectFuncNames(order []*expr.Node) []string {
	seen := make(map[string]bool)
	var names []string
	for _, n := range order {
		if n.Kind == expr.KindFuncCall && !seen[n.FuncName] {
			seen[n.FuncName] = true
			names = append(names, n.FuncName)
		}
	}
	sortStrings(names)
	return names
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func nodeRef(index map[*expr.Node]uint32, n *expr.Node) uint32 {
	if n == nil {
		return noNodeRef
	}
	idx, ok := index[n]
	if !ok {
		return noNodeRef
	}
	return idx
}

// writeNodes writes order (already in a valid post-order, children before
// parents) as the expression block body.
func writeNodes(w *bufio.Writer, order []*expr.Node, index map[*expr.Node]uint32, aw *atomWriter) error {
	for _, n := range order {
		if err := w.WriteByte(byte(n.Kind)); err != nil {
			return err
		}
		if err := writeNodePayload(w, n, index, aw); err != nil {
			return err
		}
	}
	return nil
}

func writeNodePayload(w *bufio.Writer, n *expr.Node, index map[*expr.Node]uint32, aw *atomWriter) error {
	switch n.Kind {
	case expr.KindConstant:
		idx, ok := aw.indexOf(n.Constant)
		if !ok {
			return fmt.Errorf("bsave: constant atom not in needed-atom table")
		}
		return writeU32(w, idx)
	case expr.KindFuncCall:
		if err := writeCString(w, n.FuncName); err != nil {
			return err
		}
		return writeNodeRefs(w, index, n.Args)
	case expr.KindLocalVar:
		return writeU32(w, uint32(n.LocalSlot))
	case expr.KindFactSetVar:
		return writeU32(w, uint32(n.FactSetSlot))
	case expr.KindSlotAccess:
		if err := writeU32(w, nodeRef(index, n.Var)); err != nil {
			return err
		}
		return writeCString(w, n.Slot)
	case expr.KindGlobalRef:
		return writeCString(w, n.GlobalName)
	case expr.KindIf:
		if err := writeU32(w, nodeRef(index, n.Args[0])); err != nil {
			return err
		}
		if err := writeU32(w, nodeRef(index, n.Then)); err != nil {
			return err
		}
		return writeU32(w, nodeRef(index, n.Else))
	case expr.KindWhile:
		if err := writeU32(w, nodeRef(index, n.Args[0])); err != nil {
			return err
		}
		return writeU32(w, nodeRef(index, n.Body))
	case expr.KindProgn:
		return writeNodeRefs(w, index, n.Args)
	case expr.KindBind:
		if err := writeU32(w, uint32(n.BindTarget)); err != nil {
			return err
		}
		return writeU32(w, nodeRef(index, n.Args[0]))
	case expr.KindReturn:
		if len(n.Args) == 0 {
			return w.WriteByte(0)
		}
		if err := w.WriteByte(1); err != nil {
			return err
		}
		return writeU32(w, nodeRef(index, n.Args[0]))
	case expr.KindBreak:
		return nil
	default:
		return fmt.Errorf("bsave: unhandled expression kind %d", n.Kind)
	}
}

func writeNodeRefs(w *bufio.Writer, index map[*expr.Node]uint32, nodes []*expr.Node) error {
	if err := writeU32(w, uint32(len(nodes))); err != nil {
		return err
	}
	for _, c := range nodes {
		if err := writeU32(w, nodeRef(index, c)); err != nil {
			return err
		}
	}
	return nil
}

// readNodes is the mirror of writeNodes: count nodes were written in
// valid post-order, so every reference a node makes points at an already
// decoded earlier entry.
func readNodes(r *bufio.Reader, count uint32, atoms []*atomtab.Atom) ([]*expr.Node, error) {
	nodes := make([]*expr.Node, 0, count)
	resolve := func(ref uint32) *expr.Node {
		if ref == noNodeRef || int(ref) >= len(nodes) {
			return nil
		}
		return nodes[ref]
	}
	for i := uint32(0); i < count; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		n, err := readNodePayload(r, expr.Kind(kindByte), atoms, resolve)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func readNodePayload(r *bufio.Reader, kind expr.Kind, atoms []*atomtab.Atom, resolve func(uint32) *expr.Node) (*expr.Node, error) {
	switch kind {
	case expr.KindConstant:
		idx, err := readU32(r)
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(atoms) {
			return nil, fmt.Errorf("bsave: constant atom index %d out of range", idx)
		}
		return expr.NewConstant(atoms[idx]), nil
	case expr.KindFuncCall:
		name, err := readCString(r)
		if err != nil {
			return nil, err
		}
		args, err := readNodeRefs(r, resolve)
		if err != nil {
			return nil, err
		}
		return &expr.Node{Kind: expr.KindFuncCall, FuncName: name, Args: args}, nil
	case expr.KindLocalVar:
		slot, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return expr.NewLocalVar(int(slot)), nil
	case expr.KindFactSetVar:
		slot, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return expr.NewFactSetVar(int(slot)), nil
	case expr.KindSlotAccess:
		varRef, err := readU32(r)
		if err != nil {
			return nil, err
		}
		slot, err := readCString(r)
		if err != nil {
			return nil, err
		}
		return expr.NewSlotAccess(resolve(varRef), slot), nil
	case expr.KindGlobalRef:
		name, err := readCString(r)
		if err != nil {
			return nil, err
		}
		return expr.NewGlobalRef(name), nil
	case expr.KindIf:
		condRef, err := readU32(r)
		if err != nil {
			return nil, err
		}
		thenRef, err := readU32(r)
		if err != nil {
			return nil, err
		}
		elseRef, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return expr.NewIf(resolve(condRef), resolve(thenRef), resolve(elseRef)), nil
	case expr.KindWhile:
		condRef, err := readU32(r)
		if err != nil {
			return nil, err
		}
		bodyRef, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return expr.NewWhile(resolve(condRef), resolve(bodyRef)), nil
	case expr.KindProgn:
		args, err := readNodeRefs(r, resolve)
		if err != nil {
			return nil, err
		}
		return &expr.Node{Kind: expr.KindProgn, Args: args}, nil
	case expr.KindBind:
		target, err := readU32(r)
		if err != nil {
			return nil, err
		}
		valRef, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return expr.NewBind(int(target), resolve(valRef)), nil
	case expr.KindReturn:
		has, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if has == 0 {
			return expr.NewReturn(nil), nil
		}
		valRef, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return expr.NewReturn(resolve(valRef)), nil
	case expr.KindBreak:
		return expr.NewBreak(), nil
	default:
		return nil, fmt.Errorf("bsave: unhandled expression kind %d", kind)
	}
}

func readNodeRefs(r *bufio.Reader, resolve func(uint32) *expr.Node) ([]*expr.Node, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]*expr.Node, n)
	for i := uint32(0); i < n; i++ {
		ref, err := readU32(r)
		if err != nil {
			return nil, err
		}
		out[i] = resolve(ref)
	}
	return out, nil
}
