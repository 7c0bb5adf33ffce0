package diagnosis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// #region groups

// Group selects one of the three category dimensions of a question.
type Group int

const (
	GroupPrimary Group = iota
	GroupSub
	GroupProcess
)

func (g Group) String() string {
	switch g {
	case GroupPrimary:
		return "primary"
	case GroupSub:
		return "sub"
	case GroupProcess:
		return "process"
	}
	return fmt.Sprintf("group(%d)", int(g))
}

// #endregion groups

// #region official

// Official category labels, in reporting order.
var (
	PrimaryCategories = [5]string{"問題理解", "論理思考", "仮説構築", "AI指示", "AI検証/優先順位判断"}
	SubCategories     = [2]string{"情報整理", "因果推論"}
	ProcessCategories = [5]string{"clarity", "structure", "hypothesis", "prompt clarity", "consistency"}
)

// Officials returns the official labels of a group.
func Officials(g Group) []string {
	switch g {
	case GroupPrimary:
		return PrimaryCategories[:]
	case GroupSub:
		return SubCategories[:]
	case GroupProcess:
		return ProcessCategories[:]
	}
	return nil
}

// OfficialIndex returns the slot of an official label within its group, or -1.
func OfficialIndex(g Group, label string) int {
	for i, l := range Officials(g) {
		if l == label {
			return i
		}
	}
	return -1
}

// #endregion official

// #region fixed-maps

// PrimaryScores holds one mean per official primary category; every slot is always present.
type PrimaryScores [5]float64

// SubScores holds one mean per official sub category.
type SubScores [2]float64

// ProcessScores holds one mean per official process item.
type ProcessScores [5]float64

// Get returns the value for an official label.
func (s PrimaryScores) Get(label string) (float64, bool) { return lookup(GroupPrimary, s[:], label) }

// Get returns the value for an official label.
func (s SubScores) Get(label string) (float64, bool) { return lookup(GroupSub, s[:], label) }

// Get returns the value for an official label.
func (s ProcessScores) Get(label string) (float64, bool) { return lookup(GroupProcess, s[:], label) }

func (s PrimaryScores) MarshalJSON() ([]byte, error) { return marshalLabeled(PrimaryCategories[:], s[:]) }
func (s SubScores) MarshalJSON() ([]byte, error)     { return marshalLabeled(SubCategories[:], s[:]) }
func (s ProcessScores) MarshalJSON() ([]byte, error) { return marshalLabeled(ProcessCategories[:], s[:]) }

func (s *PrimaryScores) UnmarshalJSON(b []byte) error {
	return unmarshalLabeled(b, PrimaryCategories[:], s[:])
}

func (s *SubScores) UnmarshalJSON(b []byte) error {
	return unmarshalLabeled(b, SubCategories[:], s[:])
}

func (s *ProcessScores) UnmarshalJSON(b []byte) error {
	return unmarshalLabeled(b, ProcessCategories[:], s[:])
}

func lookup(g Group, vals []float64, label string) (float64, bool) {
	i := OfficialIndex(g, label)
	if i < 0 {
		return 0, false
	}
	return vals[i], true
}

// marshalLabeled writes an object with keys in official order.
func marshalLabeled(labels []string, vals []float64) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, l := range labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(vals[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// unmarshalLabeled requires every official key and rejects unknown ones.
func unmarshalLabeled(b []byte, labels []string, dst []float64) error {
	var raw map[string]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for i, l := range labels {
		v, ok := raw[l]
		if !ok {
			return fmt.Errorf("category %q missing", l)
		}
		dst[i] = v
	}
	if len(raw) != len(labels) {
		return fmt.Errorf("expected %d categories, got %d", len(labels), len(raw))
	}
	return nil
}

// #endregion fixed-maps
