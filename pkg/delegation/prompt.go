package delegation

import (
	"fmt"
	"strings"
)

const safetyRules = `*** SAFETY RULES ***
1. You are a restricted sub-agent. Use only the operations you have been given.
2. Do the task and save the result to the output file named below.
3. Do not chat. Produce work product or an error report only.
4. If you cannot complete the task, write a line starting with "ERROR:" and the reason to the output file. Never claim success you did not achieve.
5. The task is not done until the output file has been written.`

const checklist = `*** BEFORE YOU FINISH ***
- The output file exists at the exact path given above.
- The file is not empty.
- The content matches the requested format.
- Nothing in the file is invented to hide a failure.`

// BuildPrompt composes the directive sent to a delegated agent. Layers go
// in a fixed order: safety rules, role, task, output requirements with a
// format example, profile constraints, and a final checklist.
func BuildPrompt(p *Profile, task, outputPath string) string {
	var b strings.Builder
	b.WriteString(safetyRules)

	b.WriteString("\n\n*** YOUR ROLE ***\n")
	fmt.Fprintf(&b, "Name: %s\nRole: %s\n", p.Name, p.Role)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}

	b.WriteString("\n*** YOUR TASK ***\n")
	b.WriteString(strings.TrimSpace(task))
	b.WriteString("\n")

	format := p.Format()
	if format == "" {
		format = FormatText
	}
	b.WriteString("\n*** OUTPUT REQUIREMENTS ***\n")
	fmt.Fprintf(&b, "Save your results to: %s\nFormat: %s\n", outputPath, format)
	if example := formatExample(format); example != "" {
		b.WriteString("Example:\n")
		b.WriteString(example)
		b.WriteString("\n")
	}

	if len(p.Constraints) > 0 {
		b.WriteString("\n*** YOUR CONSTRAINTS ***\n")
		for _, c := range p.Constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	b.WriteString("\n")
	b.WriteString(checklist)
	b.WriteString("\n\nBegin working now.")
	return b.String()
}

// SystemLine is the system message of a delegated conversation.
func SystemLine(p *Profile, tools []string) string {
	list := "none"
	if len(tools) > 0 {
		list = strings.Join(tools, ", ")
	}
	return fmt.Sprintf("You are agent '%s' with role: %s. Operations available: %s.", p.ID, p.Role, list)
}

func formatExample(format string) string {
	switch format {
	case FormatStructuredJSON, FormatJSON:
		return `{
  "summary": "one paragraph overview",
  "items": [{"title": "...", "detail": "...", "source": "https://..."}]
}`
	case FormatMarkdownArticle, FormatMarkdown, FormatMD:
		return `# Title

Short introduction.

## Section

Body text with [links](https://...) where relevant.`
	default:
		return ""
	}
}
