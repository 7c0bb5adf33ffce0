// Package category normalizes the category labels authored in question
// metadata onto the official reporting taxonomy.
package category

import (
	"strings"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// #region aliases

// Historical and sheet-specific names. Identity entries for official labels
// are not needed: Map falls back to the official list.
var primaryAliases = map[string]string{
	"論理構成":     "論理思考",
	"AI成果検証力":  "AI検証/優先順位判断",
	"優先順位判断":   "AI検証/優先順位判断",
}

var subAliases = map[string]string{
	"前提設定":    "因果推論",
	"要件定義力":   "情報整理",
	"品質チェック力": "因果推論",
	"意思決定":    "因果推論",
}

// Keys are folded.
var processAliases = map[string]string{
	"prompt_clarity": "prompt clarity",
	"quality_check":  "consistency",
}

// #endregion aliases

// #region map

var folder = cases.Fold()

// Map resolves a raw label to its official label. Primary and sub labels match
// exactly after trimming; process labels match case-insensitively, with
// full-width characters narrowed first.
func Map(label string, g diagnosis.Group) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}

	switch g {
	case diagnosis.GroupPrimary:
		return resolve(label, primaryAliases, diagnosis.PrimaryCategories[:])
	case diagnosis.GroupSub:
		return resolve(label, subAliases, diagnosis.SubCategories[:])
	case diagnosis.GroupProcess:
		key := foldProcess(label)
		if official, ok := processAliases[key]; ok {
			return official, true
		}
		for _, official := range diagnosis.ProcessCategories {
			if foldProcess(official) == key {
				return official, true
			}
		}
	}
	return "", false
}

func resolve(label string, aliases map[string]string, officials []string) (string, bool) {
	if official, ok := aliases[label]; ok {
		return official, true
	}
	for _, official := range officials {
		if official == label {
			return official, true
		}
	}
	return "", false
}

func foldProcess(s string) string {
	s = width.Narrow.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return folder.String(s)
}

// #endregion map

// #region question

// Mapping is the resolved official labels of one question.
type Mapping struct {
	Primary string
	Sub     string
	Process string
}

// MapQuestion resolves all three labels of a question. The returned groups
// list the ones that failed to map.
func MapQuestion(q diagnosis.Question) (Mapping, []diagnosis.Group) {
	var m Mapping
	var failed []diagnosis.Group
	var ok bool

	if m.Primary, ok = Map(q.Primary, diagnosis.GroupPrimary); !ok {
		failed = append(failed, diagnosis.GroupPrimary)
	}
	if m.Sub, ok = Map(q.Sub, diagnosis.GroupSub); !ok {
		failed = append(failed, diagnosis.GroupSub)
	}
	if m.Process, ok = Map(q.Process, diagnosis.GroupProcess); !ok {
		failed = append(failed, diagnosis.GroupProcess)
	}
	return m, failed
}

// #endregion question
