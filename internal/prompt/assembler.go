package prompt

import (
	"strings"
	"text/template"

	"compliance-rag-assistant/models"
)

// ContextSeparator joins retrieved chunks in the context block.
const ContextSeparator = "\n\n"

// ExampleQuestions are offered to users who do not know where to start.
var ExampleQuestions = []string{
	"What is STEM OPT and who is eligible?",
	"What are employer obligations for hiring international employees?",
	"What are the key compliance requirements for our organization?",
	"What documentation do we need for visa sponsorship?",
}

const promptTemplate = `You are a helpful legal assistant specializing in immigration and employment law for organizations.

Use the following context to answer the question. If you mention any documents that can be downloaded online, include the direct download link in markdown format.

Here are common document links you should use when mentioning these documents:
{{range .Links}}- {{.Title}}: {{.URL}}
{{end}}
Important notes:
{{range .Notes}}- {{.}}
{{end}}{{with .Example}}- When mentioning downloadable documents, format them like: [{{.Title}}]({{.URL}})
{{end}}- Use bold headers and bullet lists when the answer has several parts.
- If the context does not contain the answer, say clearly that the information is not available.

Context:
{{.Context}}

Question: {{.Question}}

Answer: Provide a clear, professional answer with clickable links to downloadable documents and appropriate guidance for non-downloadable documents.`

// Prompt is an assembled model input.
type Prompt struct {
	Text         string
	Question     string
	Context      string
	Chunks       int
	TableVersion int
}

func (p Prompt) String() string { return p.Text }

// Assembler renders prompts from a fixed template and a reference table.
// It is immutable and safe for concurrent use.
type Assembler struct {
	table *ReferenceTable
	tmpl  *template.Template
}

func NewAssembler(table *ReferenceTable) *Assembler {
	if table == nil {
		table = DefaultReferenceTable()
	}
	return &Assembler{
		table: table,
		tmpl:  template.Must(template.New("prompt").Parse(promptTemplate)),
	}
}

func (a *Assembler) Table() *ReferenceTable { return a.table }

// Build merges the question and chunks, in the given order, into a prompt.
// An empty chunk list yields an empty context block.
func (a *Assembler) Build(question string, chunks []models.SearchResult) Prompt {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	contextBlock := strings.Join(texts, ContextSeparator)

	var example *ReferenceLink
	if len(a.table.Links) > 0 {
		example = &a.table.Links[0]
	}

	var sb strings.Builder
	// The template is fixed and its data has no methods that fail.
	_ = a.tmpl.Execute(&sb, struct {
		Links    []ReferenceLink
		Notes    []string
		Example  *ReferenceLink
		Context  string
		Question string
	}{a.table.Links, a.table.Notes, example, contextBlock, strings.TrimSpace(question)})

	return Prompt{
		Text:         sb.String(),
		Question:     question,
		Context:      contextBlock,
		Chunks:       len(chunks),
		TableVersion: a.table.Version,
	}
}
