package bsave

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"rulecore/internal/atomtab"
	"rulecore/internal/config"
	"rulecore/internal/expr"
	"rulecore/internal/fact"
	"rulecore/internal/rule"
	"rulecore/internal/value"
)

// ReadImage is the mirror of WriteImage. funcs is consulted to validate
// the needed-function table: bload fails if a referenced function is
// not registered. Pass the same registry the expression evaluator will
// run against.
func ReadImage(r io.Reader, cfg config.BinaryFormatConfig, interner *atomtab.Interner, funcs map[string]*expr.FuncDef) (*Image, error) {
	br := bufio.NewReader(r)

	prefix, err := readCString(br)
	if err != nil {
		return nil, fmt.Errorf("bsave: reading magic prefix: %w", err)
	}
	if prefix != cfg.MagicPrefix {
		return nil, fmt.Errorf("bsave: magic prefix mismatch: got %q want %q", prefix, cfg.MagicPrefix)
	}
	version, err := readCString(br)
	if err != nil {
		return nil, err
	}
	if version != cfg.VersionTag {
		return nil, fmt.Errorf("bsave: version mismatch: got %q want %q", version, cfg.VersionTag)
	}
	st := currentSizeTag()
	for _, want := range []uint8{st.SizeT, st.Long, st.Pointer} {
		got, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		if got != want {
			return nil, fmt.Errorf("bsave: size tag mismatch: got %d want %d", got, want)
		}
	}
	bigEndianByte, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	if (bigEndianByte != 0) != cfg.BigEndian {
		return nil, fmt.Errorf("bsave: endianness mismatch with configured binary format")
	}

	atoms, err := readAtomTables(br, interner)
	if err != nil {
		return nil, fmt.Errorf("bsave: reading atom tables: %w", err)
	}

	funcCount, err := readU32(br)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < funcCount; i++ {
		name, err := readCString(br)
		if err != nil {
			return nil, err
		}
		if funcs != nil {
			if _, ok := funcs[name]; !ok {
				return nil, fmt.Errorf("bsave: needed function %q is not registered", name)
			}
		}
	}

	nodeCount, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("bsave: reading expression count: %w", err)
	}
	nodes, err := readNodes(br, nodeCount, atoms)
	if err != nil {
		return nil, fmt.Errorf("bsave: reading expression block: %w", err)
	}

	templates, err := readTemplates(br, atoms, nodes)
	if err != nil {
		return nil, fmt.Errorf("bsave: reading templates: %w", err)
	}
	templateByName := make(map[string]*fact.Template, len(templates))
	for _, t := range templates {
		templateByName[t.Name] = t
	}

	facts, err := readFacts(br, atoms, templateByName)
	if err != nil {
		return nil, fmt.Errorf("bsave: reading facts: %w", err)
	}

	rules, err := readRules(br, nodes)
	if err != nil {
		return nil, fmt.Errorf("bsave: reading rules: %w", err)
	}

	footer, err := readCString(br)
	if err != nil {
		return nil, fmt.Errorf("bsave: reading footer: %w", err)
	}
	if footer != cfg.MagicPrefix {
		return nil, fmt.Errorf("bsave: footer magic mismatch, image is truncated or corrupt")
	}

	return &Image{Interner: interner, Templates: templates, Facts: facts, Rules: rules}, nil
}

func nodeAt(nodes []*expr.Node, ref uint32) *expr.Node {
	if ref == noNodeRef || int(ref) >= len(nodes) {
		return nil
	}
	return nodes[ref]
}

func readTemplates(br *bufio.Reader, atoms []*atomtab.Atom, nodes []*expr.Node) ([]*fact.Template, error) {
	count, err := readU32(br)
	if err != nil {
		return nil, err
	}
	out := make([]*fact.Template, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := readFixedName(br)
		if err != nil {
			return nil, err
		}
		module, err := readCString(br)
		if err != nil {
			return nil, err
		}
		impliedByte, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		slotCount, err := readU32(br)
		if err != nil {
			return nil, err
		}
		slots := make([]fact.SlotDescriptor, slotCount)
		for s := uint32(0); s < slotCount; s++ {
			sname, err := readCString(br)
			if err != nil {
				return nil, err
			}
			multiByte, err := br.ReadByte()
			if err != nil {
				return nil, err
			}
			defRef, err := readU32(br)
			if err != nil {
				return nil, err
			}
			constraint, err := readConstraint(br, atoms)
			if err != nil {
				return nil, err
			}
			slots[s] = fact.SlotDescriptor{
				Name:        sname,
				IsMultislot: multiByte != 0,
				Default:     nodeAt(nodes, defRef),
				Constraint:  constraint,
			}
		}
		t := fact.NewTemplate(name, module, slots)
		t.Implied = impliedByte != 0
		out = append(out, t)
	}
	return out, nil
}

func readConstraint(br *bufio.Reader, atoms []*atomtab.Atom) (fact.Constraint, error) {
	mask, err := readU32(br)
	if err != nil {
		return fact.Constraint{}, err
	}
	hasRangeByte, err := br.ReadByte()
	if err != nil {
		return fact.Constraint{}, err
	}
	minBits, err := readU64(br)
	if err != nil {
		return fact.Constraint{}, err
	}
	maxBits, err := readU64(br)
	if err != nil {
		return fact.Constraint{}, err
	}
	allowedCount, err := readU32(br)
	if err != nil {
		return fact.Constraint{}, err
	}
	allowed := make([]*atomtab.Atom, allowedCount)
	for i := uint32(0); i < allowedCount; i++ {
		idx, err := readU32(br)
		if err != nil {
			return fact.Constraint{}, err
		}
		if int(idx) >= len(atoms) {
			return fact.Constraint{}, fmt.Errorf("bsave: allowed-value atom index %d out of range", idx)
		}
		allowed[i] = atoms[idx]
	}
	return fact.Constraint{
		TypeMask:      expr.TypeMask(mask),
		AllowedValues: allowed,
		HasRange:      hasRangeByte != 0,
		Min:           math.Float64frombits(minBits),
		Max:           math.Float64frombits(maxBits),
	}, nil
}

func readFacts(br *bufio.Reader, atoms []*atomtab.Atom, templates map[string]*fact.Template) ([]*fact.Fact, error) {
	count, err := readU32(br)
	if err != nil {
		return nil, err
	}
	out := make([]*fact.Fact, 0, count)
	for i := uint32(0); i < count; i++ {
		idx, err := readU64(br)
		if err != nil {
			return nil, err
		}
		tplName, err := readFixedName(br)
		if err != nil {
			return nil, err
		}
		stateByte, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		slotCount, err := readU32(br)
		if err != nil {
			return nil, err
		}
		tpl, ok := templates[tplName]
		if !ok {
			return nil, fmt.Errorf("bsave: fact references unknown template %q", tplName)
		}
		slots := make([]value.Value, slotCount)
		for s := uint32(0); s < slotCount; s++ {
			v, err := readValue(br, atoms)
			if err != nil {
				return nil, err
			}
			slots[s] = v
		}
		out = append(out, &fact.Fact{
			Index:    idx,
			Template: tpl,
			Slots:    slots,
			State:    fact.State(stateByte),
		})
	}
	return out, nil
}

func readValue(br *bufio.Reader, atoms []*atomtab.Atom) (value.Value, error) {
	tag, err := br.ReadByte()
	if err != nil {
		return value.Value{}, err
	}
	switch tag {
	case slotTagVoid:
		return value.Value{}, nil
	case slotTagAtom:
		idx, err := readU32(br)
		if err != nil {
			return value.Value{}, err
		}
		if int(idx) >= len(atoms) {
			return value.Value{}, fmt.Errorf("bsave: slot atom index %d out of range", idx)
		}
		return value.FromAtom(atoms[idx]), nil
	case slotTagMultifield:
		n, err := readU32(br)
		if err != nil {
			return value.Value{}, err
		}
		elems := make([]*atomtab.Atom, n)
		for i := uint32(0); i < n; i++ {
			idx, err := readU32(br)
			if err != nil {
				return value.Value{}, err
			}
			if int(idx) >= len(atoms) {
				return value.Value{}, fmt.Errorf("bsave: multifield element index %d out of range", idx)
			}
			elems[i] = atoms[idx]
		}
		begin, err := readU32(br)
		if err != nil {
			return value.Value{}, err
		}
		length, err := readU32(br)
		if err != nil {
			return value.Value{}, err
		}
		return value.FromMultifieldSlice(value.NewMultifield(elems), int(begin), int(length)), nil
	default:
		return value.Value{}, fmt.Errorf("bsave: unknown slot value tag %d", tag)
	}
}

func readRules(br *bufio.Reader, nodes []*expr.Node) ([]*rule.Rule, error) {
	count, err := readU32(br)
	if err != nil {
		return nil, err
	}
	out := make([]*rule.Rule, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := readFixedName(br)
		if err != nil {
			return nil, err
		}
		module, err := readCString(br)
		if err != nil {
			return nil, err
		}
		salience, err := readU32(br)
		if err != nil {
			return nil, err
		}
		watchedByte, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		patCount, err := readU32(br)
		if err != nil {
			return nil, err
		}
		patterns := make([]string, patCount)
		for p := uint32(0); p < patCount; p++ {
			pat, err := readCString(br)
			if err != nil {
				return nil, err
			}
			patterns[p] = pat
		}
		rhsRef, err := readU32(br)
		if err != nil {
			return nil, err
		}
		out = append(out, &rule.Rule{
			Name:     name,
			Module:   module,
			Salience: int(int32(salience)),
			Patterns: patterns,
			RHS:      nodeAt(nodes, rhsRef),
			Watched:  watchedByte != 0,
		})
	}
	return out, nil
}
