package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
)

const systemPrompt = `You compare calendar event records and decide whether they describe the same real-world occurrence.
Rules that apply to every task:
- Records are duplicates when they refer to the same real-world event, even if wording, casing or minor details differ.
- Different occurrences of a recurring event (same title, different dates) are NOT duplicates.
- Put special emphasis on dates, times, locations and core titles.
- If a record lists several dates or times and one of them matches the other record together with the other details, treat them as duplicates.
- Answer with a JSON array only, one object per SUBJECT in the given order. No prose, no code fences.`

type taskSpec struct {
	intro   string
	answer  string
	example string
}

var tasks = map[interfaces.CallKind]taskSpec{
	interfaces.CallGroupDuplicates: {
		intro: "The SUBJECTS are rows of one table. Assign duplicate groups among them.",
		answer: `"duplicate_group": integer or null. Rows that duplicate each other share the same number (numbering starts at 1); unique rows get null.`,
		example: `[{"duplicate_group": 1}, {"duplicate_group": null}, {"duplicate_group": 1}]`,
	},
	interfaces.CallCrossTable: {
		intro: "The SUBJECTS are main events, the COMPARISONS are sub events. A sub event carrying skip_main_index=N is a child of SUBJECT N and must never be reported as a duplicate of SUBJECT N. If a main event matches several sub events, report the first one.",
		answer: `"duplicate_of_sub_index": 0-based index into COMPARISONS of the matching sub event, or null.`,
		example: `[{"duplicate_of_sub_index": 2}, {"duplicate_of_sub_index": null}]`,
	},
	interfaces.CallMatchExisting: {
		intro: "The SUBJECTS are incoming main-event candidates. The COMPARISONS are stored main events (ref main:<id>), stored sub events (ref sub:<id>) and the incoming candidates themselves (ref candidate:<index>). A candidate may only match a candidate with a LOWER index, never itself.",
		answer: `"is_new": boolean; "matching_existing_id": the ref of the matching comparison row (e.g. "main:12"), or null when is_new is true.`,
		example: `[{"is_new": true, "matching_existing_id": null}, {"is_new": false, "matching_existing_id": "sub:7"}]`,
	},
	interfaces.CallCheckNew: {
		intro:   "The SUBJECTS are incoming sub-event candidates, the COMPARISONS are stored sub events.",
		answer:  `"is_new": boolean, false when the subject already exists among the COMPARISONS.`,
		example: `[{"is_new": true}, {"is_new": false}]`,
	},
	interfaces.CallReclassifySub: {
		intro: "The SUBJECTS are incoming sub-event candidates, the COMPARISONS are stored main events. Earlier runs sometimes stored a sub event as a standalone main event by mistake. Detect subjects that describe the same occurrence as a stored main event.",
		answer: `"is_new": boolean; "matches_main_id": ref of the matching stored main event (e.g. "main:4") or null; "new_temp_key": the temp_key of the main event this subject should be attached to as a child (usually the subject's own parent key or the temp_key of the true parent), or null.`,
		example: `[{"is_new": true, "matches_main_id": null, "new_temp_key": null}, {"is_new": false, "matches_main_id": "main:4", "new_temp_key": "conf-2030"}]`,
	},
}

// buildPrompt 渲染单次调用的用户提示词
func buildPrompt(kind interfaces.CallKind, subjects, comparisons []model.EventSummary) (string, error) {
	task, ok := tasks[kind]
	if !ok {
		return "", fmt.Errorf("unknown oracle call kind %q", kind)
	}
	subjectsJSON, err := indexedJSON(subjects)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(task.intro)
	b.WriteString("\n\nSUBJECTS:\n")
	b.WriteString(subjectsJSON)
	if kind != interfaces.CallGroupDuplicates {
		comparisonsJSON, err := indexedJSON(comparisons)
		if err != nil {
			return "", err
		}
		b.WriteString("\n\nCOMPARISONS:\n")
		b.WriteString(comparisonsJSON)
	}
	fmt.Fprintf(&b, "\n\nReturn exactly %d objects. Each object has: %s\nExample: %s\n", len(subjects), task.answer, task.example)
	return b.String(), nil
}

type indexedSummary struct {
	Index int `json:"index"`
	model.EventSummary
}

func indexedJSON(rows []model.EventSummary) (string, error) {
	out := make([]indexedSummary, len(rows))
	for i, r := range rows {
		out[i] = indexedSummary{Index: i, EventSummary: r}
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化摘要失败: %w", err)
	}
	return string(raw), nil
}
