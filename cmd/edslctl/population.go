package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"edsl/pkg/agent"
	"edsl/pkg/model"
	"edsl/pkg/modeladapter"
	"edsl/pkg/scenario"
	"edsl/pkg/scheduler"
	"edsl/pkg/survey"
)

// populationDoc is the CLI's wire format for the population half of a job
// (spec §4.9 "Input": `Survey × [Agent] × [Scenario] × [Model] ×
// iterations`). The Survey itself is a separate file using Survey's own
// MarshalJSON/UnmarshalJSON (spec §6.1).
type populationDoc struct {
	Agents     []agentSpec    `json:"agents"`
	Scenarios  []scenarioSpec `json:"scenarios"`
	Models     []modelSpec    `json:"models"`
	Iterations int            `json:"iterations"`
}

type agentSpec struct {
	Name   string         `json:"name"`
	Traits map[string]any `json:"traits"`
}

type scenarioSpec struct {
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields"`
}

type modelSpec struct {
	Service    string            `json:"service"`
	ModelName  string            `json:"model_name"`
	Parameters model.Parameters  `json:"parameters"`
	APIKeyEnv  string            `json:"api_key_env"`
}

func loadSurvey(path string) (*survey.Survey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read survey: %w", err)
	}
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return survey.LoadYAML(data)
	}
	s := &survey.Survey{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode survey: %w", err)
	}
	return s, nil
}

func loadPopulation(path string) (populationDoc, error) {
	var doc populationDoc
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read population: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode population: %w", err)
	}
	if doc.Iterations <= 0 {
		doc.Iterations = 1
	}
	return doc, nil
}

func buildJob(s *survey.Survey, doc populationDoc) (scheduler.Job, error) {
	job := scheduler.Job{
		Survey:     s,
		Iterations: doc.Iterations,
	}
	for _, a := range doc.Agents {
		job.Agents = append(job.Agents, agent.New(a.Name, a.Traits))
	}
	for _, sc := range doc.Scenarios {
		job.Scenarios = append(job.Scenarios, scenario.Scenario{Name: sc.Name, Fields: sc.Fields})
	}
	for _, m := range doc.Models {
		client, err := resolveClient(m)
		if err != nil {
			return job, fmt.Errorf("model %s/%s: %w", m.Service, m.ModelName, err)
		}
		job.Models = append(job.Models, scheduler.ModelSpec{
			Identity: model.Identity{Service: m.Service, ModelName: m.ModelName, Parameters: m.Parameters},
			Params:   m.Parameters,
			Client:   client,
		})
	}
	return job, nil
}

// resolveClient maps a modelSpec's Service to a model.Client. "test" (spec
// §4.6's deterministic canned-response model) needs no credentials; the
// real providers read their API key from APIKeyEnv (default
// ANTHROPIC_API_KEY / OPENAI_API_KEY) since the core has no credential
// store of its own (spec §5: "a singleton key-store for provider
// credentials is permitted but must be initialized before job start" — here
// that singleton is simply the process environment).
func resolveClient(m modelSpec) (model.Client, error) {
	switch m.Service {
	case "", "test":
		return modeladapter.NewTestClient(), nil
	case "anthropic":
		key := os.Getenv(envOr(m.APIKeyEnv, "ANTHROPIC_API_KEY"))
		return modeladapter.NewAnthropicClientFromAPIKey(key, modeladapter.AnthropicOptions{
			MaxTokens:   m.Parameters.MaxOutputTokens,
			Temperature: m.Parameters.Temperature,
		})
	case "openai":
		key := os.Getenv(envOr(m.APIKeyEnv, "OPENAI_API_KEY"))
		return modeladapter.NewOpenAIClientFromAPIKey(key, modeladapter.OpenAIOptions{
			MaxTokens:   m.Parameters.MaxOutputTokens,
			Temperature: m.Parameters.Temperature,
		})
	default:
		return nil, fmt.Errorf("unsupported model service %q (edslctl wires test/anthropic/openai; bedrock and the grpc gateway need SDK clients constructed in-process)", m.Service)
	}
}

func envOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
