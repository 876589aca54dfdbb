package codegen

import (
	"fmt"
	"strings"

	"voice-commit/internal/model"
)

// Template is an offline, pre-built multi-file project.
type Template struct {
	Key      string
	Name     string
	Language string
	Files    []TemplateFile
}

// TemplateFile is one file of a Template.
type TemplateFile struct {
	Path    string
	Content string
}

// intent maps transcript keywords to a template. With requireAll every keyword must occur,
// otherwise any one is enough.
type intent struct {
	keywords   []string
	requireAll bool
	template   *Template
}

func (i intent) matches(lowered string) bool {
	for _, kw := range i.keywords {
		found := strings.Contains(lowered, kw)
		if i.requireAll && !found {
			return false
		}
		if !i.requireAll && found {
			return true
		}
	}
	return i.requireAll
}

// intents is checked in order; the first match wins.
var intents = []intent{
	{keywords: []string{"calculator", "calc"}, template: &calculatorTemplate},
	{keywords: []string{"todo", "task"}, template: &todoTemplate},
	{keywords: []string{"weather"}, template: &weatherTemplate},
	{keywords: []string{"timer", "countdown"}, template: &timerTemplate},
	{keywords: []string{"hello", "ai"}, requireAll: true, template: &helloAITemplate},
}

// FindTemplate classifies a transcript by keyword. It never returns nil: unmatched
// transcripts get the basic web app.
func FindTemplate(transcript string) *Template {
	lowered := strings.ToLower(transcript)
	for _, in := range intents {
		if in.matches(lowered) {
			return in.template
		}
	}
	return &basicWebTemplate
}

// Result converts the template into a CodeGenerationResult.
func (t *Template) Result() model.CodeGenerationResult {
	files := make([]model.FileChange, len(t.Files))
	for i, f := range t.Files {
		files[i] = model.FileChange{Path: f.Path, Content: f.Content, Operation: model.OperationCreate}
	}
	return model.CodeGenerationResult{
		Files:         files,
		CommitMessage: fmt.Sprintf("Create %s via voice command", t.Name),
		Summary:       fmt.Sprintf("Generated %s (%s) with %d files", t.Name, t.Language, len(files)),
	}
}

var calculatorTemplate = Template{
	Key:      "calculator",
	Name:     "Basic Calculator",
	Language: "JavaScript",
	Files: []TemplateFile{
		{Path: "index.html", Content: calculatorHTML},
		{Path: "style.css", Content: calculatorCSS},
		{Path: "script.js", Content: calculatorJS},
		{Path: "README.md", Content: readme("Calculator App", "A simple calculator with basic arithmetic operations.", "script.js")},
	},
}

var todoTemplate = Template{
	Key:      "todo",
	Name:     "Todo List App",
	Language: "JavaScript",
	Files: []TemplateFile{
		{Path: "index.html", Content: todoHTML},
		{Path: "app.js", Content: todoJS},
		{Path: "README.md", Content: readme("Todo List App", "A simple todo list application.", "app.js")},
	},
}

var weatherTemplate = Template{
	Key:      "weather",
	Name:     "Weather App",
	Language: "JavaScript",
	Files: []TemplateFile{
		{Path: "index.html", Content: weatherHTML},
		{Path: "weather.js", Content: weatherJS},
		{Path: "README.md", Content: readme("Weather App", "A simple weather application with demo data.", "weather.js")},
	},
}

var timerTemplate = Template{
	Key:      "timer",
	Name:     "Timer App",
	Language: "JavaScript",
	Files: []TemplateFile{
		{Path: "index.html", Content: timerHTML},
		{Path: "timer.js", Content: timerJS},
		{Path: "README.md", Content: readme("Timer App", "A simple countdown timer.", "timer.js")},
	},
}

var helloAITemplate = Template{
	Key:      "hello-ai",
	Name:     "Hello AI World",
	Language: "Multi-language",
	Files: []TemplateFile{
		{Path: "index.html", Content: helloAIHTML},
		{Path: "script.js", Content: helloAIJS},
		{Path: "hello-ai.py", Content: helloAIPython},
		{Path: "README.md", Content: readme("Hello AI World", "A greeting generated from a voice command.", "script.js")},
	},
}

var basicWebTemplate = Template{
	Key:      "basic-web",
	Name:     "Basic Web App",
	Language: "JavaScript",
	Files: []TemplateFile{
		{Path: "index.html", Content: basicHTML},
		{Path: "style.css", Content: basicCSS},
		{Path: "script.js", Content: basicJS},
		{Path: "README.md", Content: readme("Generated Web App", "This app was generated from a voice command.", "script.js")},
	},
}

func readme(title, description, entry string) string {
	return fmt.Sprintf("# %s\n\n%s\n\n## Usage\n\nOpen `index.html` in a browser. Logic lives in `%s`.\n", title, description, entry)
}
