package bsave

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"rulecore/internal/config"
	"rulecore/internal/expr"
	"rulecore/internal/fact"
	"rulecore/internal/logging"
	"rulecore/internal/rule"
	"rulecore/internal/value"
)

var writeLog = logging.Get(logging.CategoryBsave)

// WriteImage serializes img to w: magic prefix, version
// tag, size tag, needed-atom tables, needed-function table, a shared
// expression block, then one block per construct kind (templates, facts,
// rules), closed by a repeat of the magic prefix.
func WriteImage(w io.Writer, cfg config.BinaryFormatConfig, img *Image) error {
	bw := bufio.NewWriter(w)

	if err := writeCString(bw, cfg.MagicPrefix); err != nil {
		return err
	}
	if err := writeCString(bw, cfg.VersionTag); err != nil {
		return err
	}
	st := currentSizeTag()
	if err := bw.WriteByte(st.SizeT); err != nil {
		return err
	}
	if err := bw.WriteByte(st.Long); err != nil {
		return err
	}
	if err := bw.WriteByte(st.Pointer); err != nil {
		return err
	}
	bigEndianByte := byte(0)
	if cfg.BigEndian {
		bigEndianByte = 1
	}
	if err := bw.WriteByte(bigEndianByte); err != nil {
		return err
	}

	aw, err := writeAtomTables(bw, img.Interner)
	if err != nil {
		return fmt.Errorf("bsave: writing atom tables: %w", err)
	}

	var roots []*expr.Node
	for _, t := range img.Templates {
		for _, s := range t.Slots {
			roots = append(roots, s.Default)
		}
	}
	for _, r := range img.Rules {
		roots = append(roots, r.RHS)
	}
	order, index := collectNodes(roots)

	funcNames := collectFuncNames(order)
	if err := writeU32(bw, uint32(len(funcNames))); err != nil {
		return err
	}
	for _, name := range funcNames {
		if err := writeCString(bw, name); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(order))); err != nil {
		return fmt.Errorf("bsave: writing expression count: %w", err)
	}
	if err := writeNodes(bw, order, index, aw); err != nil {
		return fmt.Errorf("bsave: writing expression block: %w", err)
	}

	if err := writeTemplates(bw, img.Templates, aw, index); err != nil {
		return fmt.Errorf("bsave: writing templates: %w", err)
	}
	if err := writeFacts(bw, img.Facts, aw); err != nil {
		return fmt.Errorf("bsave: writing facts: %w", err)
	}
	if err := writeRules(bw, img.Rules, index); err != nil {
		return fmt.Errorf("bsave: writing rules: %w", err)
	}

	if err := writeCString(bw, cfg.MagicPrefix); err != nil {
		return err
	}
	return bw.Flush()
}

func writeTemplates(bw *bufio.Writer, templates []*fact.Template, aw *atomWriter, index map[*expr.Node]uint32) error {
	if err := writeU32(bw, uint32(len(templates))); err != nil {
		return err
	}
	for _, t := range templates {
		if err := writeFixedName(bw, t.Name); err != nil {
			return err
		}
		if err := writeCString(bw, t.Module); err != nil {
			return err
		}
		implied := byte(0)
		if t.Implied {
			implied = 1
		}
		if err := bw.WriteByte(implied); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(len(t.Slots))); err != nil {
			return err
		}
		for _, s := range t.Slots {
			if err := writeCString(bw, s.Name); err != nil {
				return err
			}
			multi := byte(0)
			if s.IsMultislot {
				multi = 1
			}
			if err := bw.WriteByte(multi); err != nil {
				return err
			}
			if err := writeU32(bw, nodeRef(index, s.Default)); err != nil {
				return err
			}
			if err := writeConstraint(bw, s.Constraint, aw); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeConstraint(bw *bufio.Writer, c fact.Constraint, aw *atomWriter) error {
	if err := writeU32(bw, uint32(c.TypeMask)); err != nil {
		return err
	}
	hasRange := byte(0)
	if c.HasRange {
		hasRange = 1
	}
	if err := bw.WriteByte(hasRange); err != nil {
		return err
	}
	if err := writeU64(bw, math.Float64bits(c.Min)); err != nil {
		return err
	}
	if err := writeU64(bw, math.Float64bits(c.Max)); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(len(c.AllowedValues))); err != nil {
		return err
	}
	for _, a := range c.AllowedValues {
		idx, ok := aw.indexOf(a)
		if !ok {
			return fmt.Errorf("bsave: allowed-value atom not in needed-atom table")
		}
		if err := writeU32(bw, idx); err != nil {
			return err
		}
	}
	return nil
}

func writeFacts(bw *bufio.Writer, facts []*fact.Fact, aw *atomWriter) error {
	if err := writeU32(bw, uint32(len(facts))); err != nil {
		return err
	}
	for _, f := range facts {
		if err := writeU64(bw, f.Index); err != nil {
			return err
		}
		if err := writeFixedName(bw, f.Template.Name); err != nil {
			return err
		}
		if err := bw.WriteByte(byte(f.State)); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(len(f.Slots))); err != nil {
			return err
		}
		for _, v := range f.Slots {
			if err := writeValue(bw, v, aw); err != nil {
				return err
			}
		}
	}
	return nil
}

const (
	slotTagVoid       byte = 0
	slotTagAtom       byte = 1
	slotTagMultifield byte = 2
)

func writeValue(bw *bufio.Writer, v value.Value, aw *atomWriter) error {
	switch v.Tag() {
	case value.TagAtom:
		idx, ok := aw.indexOf(v.Atom())
		if !ok {
			writeLog.Warn("bsave: slot atom not in needed-atom table, writing void")
			return bw.WriteByte(slotTagVoid)
		}
		if err := bw.WriteByte(slotTagAtom); err != nil {
			return err
		}
		return writeU32(bw, idx)
	case value.TagMultifield:
		if err := bw.WriteByte(slotTagMultifield); err != nil {
			return err
		}
		elems := v.MultifieldValue().Elements()
		if err := writeU32(bw, uint32(len(elems))); err != nil {
			return err
		}
		for _, a := range elems {
			idx, ok := aw.indexOf(a)
			if !ok {
				return fmt.Errorf("bsave: multifield element atom not in needed-atom table")
			}
			if err := writeU32(bw, idx); err != nil {
				return err
			}
		}
		if err := writeU32(bw, uint32(v.Begin)); err != nil {
			return err
		}
		return writeU32(bw, uint32(v.Range))
	default:
		writeLog.Warn("bsave: fact/instance-valued slot cannot be serialized, writing void")
		return bw.WriteByte(slotTagVoid)
	}
}

func writeRules(bw *bufio.Writer, rules []*rule.Rule, index map[*expr.Node]uint32) error {
	if err := writeU32(bw, uint32(len(rules))); err != nil {
		return err
	}
	for _, r := range rules {
		if err := writeFixedName(bw, r.Name); err != nil {
			return err
		}
		if err := writeCString(bw, r.Module); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(int32(r.Salience))); err != nil {
			return err
		}
		watched := byte(0)
		if r.Watched {
			watched = 1
		}
		if err := bw.WriteByte(watched); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(len(r.Patterns))); err != nil {
			return err
		}
		for _, p := range r.Patterns {
			if err := writeCString(bw, p); err != nil {
				return err
			}
		}
		if err := writeU32(bw, nodeRef(index, r.RHS)); err != nil {
			return err
		}
	}
	return nil
}
