package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/applytrail/internal/model"
)

const (
	classifySystem = "You are an email triage assistant. You decide whether an email confirms that a job application was received. Answer with a single word: YES or NO."
	extractSystem  = "You extract structured data from job application confirmation emails. Respond with a single JSON object and nothing else."

	// maxBodyChars bounds the body sent to a backend
	maxBodyChars = 3000
)

// ConfirmationPhrases are strong positive signals
var ConfirmationPhrases = []string{
	"thank you for applying",
	"thanks for applying",
	"thank you for your application",
	"thanks for your application",
	"we have received your application",
	"we've received your application",
	"your application has been received",
	"application received",
	"application submitted",
	"your application was sent",
	"successfully submitted your application",
	"thank you for your interest in",
}

// RejectionPhrases are strong negative signals. Any of them beats a
// confirmation phrase, even before the backend is asked.
var RejectionPhrases = []string{
	"not moving forward",
	"will not be moving forward",
	"decided to move forward with other candidates",
	"pursue other candidates",
	"you were not selected",
	"you have not been selected",
	"regret to inform",
	"position has been filled",
	"no longer under consideration",
	"decided not to proceed",
}

// HedgePhrases often appear in plain confirmations ("unfortunately we cannot
// reply to every applicant"). They are left to the backend.
var HedgePhrases = []string{
	"unfortunately",
	"not selected",
}

// ATSDomains are sender domains of applicant tracking systems
var ATSDomains = []string{
	"greenhouse.io",
	"lever.co",
	"myworkday.com",
	"myworkdayjobs.com",
	"icims.com",
	"smartrecruiters.com",
	"jobvite.com",
	"ashbyhq.com",
	"bamboohr.com",
	"taleo.net",
	"workable.com",
}

// BuildClassifyPrompt constructs the decision prompt for one item
func BuildClassifyPrompt(item model.Item) string {
	var b strings.Builder

	b.WriteString("Decide whether the following email is an automated confirmation that a job application was received.\n\n")

	b.WriteString("POSITIVE SIGNALS:\n")
	fmt.Fprintf(&b, "- Confirmation phrasing such as: %s\n", quoteList(ConfirmationPhrases))
	fmt.Fprintf(&b, "- Sent from an applicant tracking system domain: %s\n\n", strings.Join(ATSDomains, ", "))

	b.WriteString("NEGATIVE SIGNALS:\n")
	fmt.Fprintf(&b, "- Rejection phrasing such as: %s\n", quoteList(RejectionPhrases))
	b.WriteString("- Interview invitations, assessments or scheduling requests\n")
	fmt.Fprintf(&b, "- Phrases like %s only count as rejection when they refer to this application's outcome\n", quoteList(HedgePhrases))
	b.WriteString("- Job alerts, newsletters, recruiter outreach and other marketing\n\n")

	b.WriteString("RULES:\n")
	b.WriteString("1. If the email contains both confirmation and rejection language, answer NO. Rejection wins.\n")
	b.WriteString("2. Answer YES only for an acknowledgement of a submitted application.\n")
	b.WriteString("3. Reply with exactly one word: YES or NO.\n\n")

	writeItem(&b, item)
	return b.String()
}

// BuildExtractPrompt constructs the structured-output prompt for one item
func BuildExtractPrompt(item model.Item) string {
	var b strings.Builder

	b.WriteString("Extract the hiring company and the position from this job application confirmation email.\n\n")
	b.WriteString("Return JSON with exactly these keys:\n")
	b.WriteString(`{"company": string or null, "position": string or null, "date": string or null}`)
	b.WriteString("\n\nRULES:\n")
	b.WriteString("1. Use null for anything not stated in the email. Do not guess.\n")
	b.WriteString("2. company is the employer, not the applicant tracking system.\n")
	b.WriteString("3. position is the job title as written.\n\n")

	writeItem(&b, item)
	return b.String()
}

func writeItem(b *strings.Builder, item model.Item) {
	b.WriteString("EMAIL:\n")
	fmt.Fprintf(b, "From: %s\n", item.Sender)
	fmt.Fprintf(b, "Subject: %s\n", item.Subject)
	if !item.ReceivedAt.IsZero() {
		fmt.Fprintf(b, "Date: %s\n", item.ReceivedAt.Format("2006-01-02"))
	}
	b.WriteString("\n")
	b.WriteString(truncate(itemText(item), maxBodyChars))
	b.WriteString("\n")
}

// itemText prefers the body and falls back to the snippet
func itemText(item model.Item) string {
	if strings.TrimSpace(item.Body) != "" {
		return item.Body
	}
	return item.Snippet
}

// lexicalTieBreak reports whether the item carries both a confirmation
// phrase and a rejection phrase, in which case it classifies negative.
func lexicalTieBreak(item model.Item) bool {
	text := strings.ToLower(item.Subject + "\n" + item.Snippet + "\n" + item.Body)
	return containsAny(text, ConfirmationPhrases) && containsAny(text, RejectionPhrases)
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = `"` + s + `"`
	}
	return strings.Join(quoted, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
