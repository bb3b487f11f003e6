// Package prompts holds the query templates rendered into the model by
// prompt-type matrix for a fingerprint run.
package prompts

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

// Library maps prompt types to their templates. Templates may reference
// {name}, {category}, and {location}.
type Library struct {
	templates map[model.PromptType][]string
}

// Default returns the built-in template set.
func Default() *Library {
	return &Library{templates: map[model.PromptType][]string{
		model.PromptTypeFactual: {
			"What do you know about {name}, a {category} based in {location}? Describe what they do and what they are known for.",
		},
		model.PromptTypeOpinion: {
			"What is the general reputation of {name} in {location}? Summarize what customers and reviewers say about this {category}.",
		},
		model.PromptTypeRecommendation: {
			"What are the top 10 best options for a {category} in {location}? List them in ranked order, one per line, with a short reason for each.",
		},
	}}
}

// templateFile is the YAML override format: a list of templates per type.
type templateFile struct {
	Factual        []string `yaml:"factual"`
	Opinion        []string `yaml:"opinion"`
	Recommendation []string `yaml:"recommendation"`
}

// LoadFile reads a YAML template override. Types missing from the file keep
// the built-in defaults.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "prompts: read template file")
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, eris.Wrap(err, "prompts: unmarshal template file")
	}

	lib := Default()
	if len(tf.Factual) > 0 {
		lib.templates[model.PromptTypeFactual] = tf.Factual
	}
	if len(tf.Opinion) > 0 {
		lib.templates[model.PromptTypeOpinion] = tf.Opinion
	}
	if len(tf.Recommendation) > 0 {
		lib.templates[model.PromptTypeRecommendation] = tf.Recommendation
	}
	return lib, nil
}

// Render fills the first template of the given type with business fields.
// Empty category and location degrade to generic phrasing rather than
// leaving holes in the prompt.
func (l *Library) Render(pt model.PromptType, biz model.BusinessContext) string {
	templates := l.templates[pt]
	if len(templates) == 0 {
		return ""
	}

	category := strings.TrimSpace(biz.Category)
	if category == "" {
		category = "local business"
	}
	location := strings.TrimSpace(biz.Location)
	if location == "" {
		location = "their area"
	}

	r := strings.NewReplacer(
		"{name}", strings.TrimSpace(biz.Name),
		"{category}", category,
		"{location}", location,
	)
	return r.Replace(templates[0])
}

// Queries renders the full model-by-type matrix in stable order: for each
// model, each prompt type in declaration order.
func (l *Library) Queries(biz model.BusinessContext, models []string, types []model.PromptType, temperature *float64, maxTokens int) []model.Query {
	queries := make([]model.Query, 0, len(models)*len(types))
	for _, m := range models {
		for _, pt := range types {
			queries = append(queries, model.Query{
				Model:       m,
				Prompt:      l.Render(pt, biz),
				PromptType:  pt,
				Temperature: temperature,
				MaxTokens:   maxTokens,
			})
		}
	}
	return queries
}
