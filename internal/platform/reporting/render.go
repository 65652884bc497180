package reporting

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vekaria04/hospital-management-system/pkg/intake"
)

const noAnswer = "(no answer)"

// RenderPatientReport writes a plain-text report of sub. Answers are labelled
// with the current prompts and grouped by category in schema order; answers
// whose key no longer matches a question are listed last under their raw key.
func RenderPatientReport(sub *PatientSubmission, prompts []Prompt) string {
	var b strings.Builder
	title := cases.Title(language.English)

	fmt.Fprintf(&b, "Patient Health Report\n")
	fmt.Fprintf(&b, "Patient: %s %s <%s>\n", sub.FirstName, sub.LastName, sub.Email)
	if sub.Age != nil {
		fmt.Fprintf(&b, "Age: %d\n", *sub.Age)
	}
	if sub.Gender != "" {
		fmt.Fprintf(&b, "Gender: %s\n", title.String(sub.Gender))
	}
	fmt.Fprintf(&b, "Submitted: %s (%s)\n", sub.SubmittedAt.UTC().Format("2006-01-02 15:04 MST"), sub.Lang)
	if sub.PainLevel != nil {
		fmt.Fprintf(&b, "Pain level: %d/10\n", *sub.PainLevel)
	}

	questions := make([]intake.Question, 0, len(prompts))
	seen := make(map[string]bool, len(prompts))
	for _, p := range prompts {
		if _, answered := sub.Answers[p.FieldName]; !answered {
			continue
		}
		seen[p.FieldName] = true
		questions = append(questions, intake.Question{FieldName: p.FieldName, Question: p.Question, Category: p.Category})
	}
	for _, g := range intake.GroupByCategory(questions) {
		fmt.Fprintf(&b, "\n%s\n%s\n", title.String(g.Category), strings.Repeat("-", len(g.Category)))
		for _, q := range g.Questions {
			fmt.Fprintf(&b, "%s: %s\n", q.Question, answerText(sub.Answers[q.FieldName]))
		}
	}

	var extra []string
	for k := range sub.Answers {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		b.WriteString("\nOther answers\n-------------\n")
		for _, k := range extra {
			fmt.Fprintf(&b, "%s: %s\n", k, answerText(sub.Answers[k]))
		}
	}
	return b.String()
}

func answerText(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return noAnswer
	}
	return *v
}
