// Package codegen turns a transcript into a set of file changes. A generative backend is
// tried first; keyword-selected templates are the offline fallback.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	custom_errors "voice-commit/internal/errors"
	"voice-commit/internal/model"
)

var errNoFiles = errors.New("no code files found in backend response")

const systemInstruction = `You are a senior software engineer who turns spoken feature requests into complete,
working projects.

Generate multiple interconnected files that work together as one application, with a README.md.
Keep every file path relative to the repository root.

OUTPUT FORMAT:
Provide each file in the following format:
**filename.ext**
` + "```language\n[complete file content here]\n```"

// Pipeline is the code generation entry point.
type Pipeline struct {
	backend  Backend
	logger   *slog.Logger
	demoMode bool
}

// NewPipeline creates a Pipeline. A nil backend or demoMode restricts it to templates.
func NewPipeline(backend Backend, logger *slog.Logger, demoMode bool) *Pipeline {
	return &Pipeline{backend: backend, logger: logger, demoMode: demoMode}
}

// Generate produces the file changes for transcript. Backend failures are logged and
// replaced by the template result; an error is returned only for an empty transcript.
func (p *Pipeline) Generate(ctx context.Context, transcript string, repo *model.Repository) (model.CodeGenerationResult, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return model.CodeGenerationResult{}, &custom_errors.GenerationError{Err: errors.New("empty transcript")}
	}
	logger := p.logger.With("transcript", transcript)

	if !p.demoMode && p.backend != nil {
		result, err := p.generateWithBackend(ctx, transcript, repo)
		if err == nil {
			logger.Info("Generated code with backend", "files", len(result.Files))
			return result, nil
		}
		logger.Warn("Backend generation failed, falling back to templates", "error", err)
	}

	tmpl := FindTemplate(transcript)
	logger.Info("Using template", "template", tmpl.Key)
	return tmpl.Result(), nil
}

func (p *Pipeline) generateWithBackend(ctx context.Context, transcript string, repo *model.Repository) (model.CodeGenerationResult, error) {
	text, err := p.backend.Complete(ctx, systemInstruction, buildPrompt(transcript, repo))
	if err != nil {
		return model.CodeGenerationResult{}, err
	}

	files := ParseFiles(text)
	if len(files) == 0 {
		return model.CodeGenerationResult{}, errNoFiles
	}
	return model.CodeGenerationResult{
		Files:         files,
		CommitMessage: "Generate code via AI: " + transcript,
		Summary:       fmt.Sprintf("Generated %d files using AI from voice command", len(files)),
	}, nil
}

func buildPrompt(transcript string, repo *model.Repository) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n\n", transcript)
	if repo != nil {
		fmt.Fprintf(&b, "Target repository: %s\n", repo.FullName)
		fmt.Fprintf(&b, "Default branch: %s\n\n", repo.DefaultBranch)
	}
	b.WriteString("Generate the complete project now.")
	return b.String()
}
