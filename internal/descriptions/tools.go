package descriptions

import "sort"

// Tool names exposed by the MCP server
const (
	ExamExtract  = "exam_extract"
	ExamAnswers  = "exam_answers"
	ExamMetadata = "exam_metadata"
	ExamFindSets = "exam_find_sets"
)

const (
	ExamExtractDescription = `Turn a question booklet and its answer-key booklet into structured multiple-choice questions.

**When to use:** You have the two PDFs of one exam session (題目 and 答案) and need every question with its options, correct answer and figure.

**Why it's useful:** Reads the answer grid by position, applies the errata notice (更正/送分) on top of it, and links figures to the question they belong to.

**Examples:**
• Parse one session: "Extract 生化/111_1/題目.pdf with 生化/111_1/答案.pdf"
• Force a numbering mode: "Extract 藥理/110_2 with mode strict_start because stems contain decimals"

**Common workflows:**
1. Discovery: exam_find_sets → pick a set → exam_extract
2. Review: exam_extract → look at the warnings → fix the ambiguous questions by hand

**Best practices:** Answers that could not be read come back as "#" with the note 答案待確認; check the warnings list before trusting a result.`

	ExamAnswersDescription = `Read only the answer-key booklet of an exam.

**When to use:** You want the answer table and the errata notes without parsing the question booklet.

**Why it's useful:** Shows the grid answers after corrections, so an answer booklet can be checked on its own.

**Examples:**
• Check a correction: "Read the answers in 生化/111_1/答案.pdf and show question 5"

**Best practices:** Questions given full credit are returned as 送分; multi-answer questions list every accepted option.`

	ExamMetadataDescription = `Read the header of a question booklet: exam name, subject, subject code, year, period and question count.

**When to use:** Need to identify or catalog an exam without parsing its questions.

**Why it's useful:** Falls back to the file name (for example 111年_第一次) when the header misses the year or period.

**Examples:**
• Catalog: "Get the metadata of every question booklet under 藥理/"

**Best practices:** Fields that could not be found are null rather than guessed.`

	ExamFindSetsDescription = `Find exam sessions under a directory by pairing question and answer booklets per folder.

**When to use:** Before extracting, to see which sessions are available and complete.

**Why it's useful:** Folders missing one of the two booklets are reported instead of failing later.

**Examples:**
• List sessions: "Find all exam sets in the configured exam directory"
• Narrow down: "Find exam sets in 生化/"

**Best practices:** Booklets are matched by the configured file name keywords, 題目 and 答案 by default.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	ExamExtract:  ExamExtractDescription,
	ExamAnswers:  ExamAnswersDescription,
	ExamMetadata: ExamMetadataDescription,
	ExamFindSets: ExamFindSetsDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the tool names in sorted order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
