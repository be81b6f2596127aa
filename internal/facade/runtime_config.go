package facade

import "context"

type SetAPIKeyParams struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
}

func (f *Facade) SetAPIKey(ctx context.Context, params SetAPIKeyParams) error {
	return callVoid(ctx, f, cmdSetAPIKey, params)
}

func (f *Facade) SetStitchAPIKey(ctx context.Context, apiKey string) error {
	return callVoid(ctx, f, cmdSetStitchAPIKey, struct {
		APIKey string `json:"apiKey"`
	}{APIKey: apiKey})
}

// RuntimeConfig is a free-form settings document; its schema is owned
// by the worker, not this facade (§4.G "no application logic beyond
// shape translation").
type RuntimeConfig map[string]any

func (f *Facade) SetRuntimeConfig(ctx context.Context, cfg RuntimeConfig) error {
	return callVoid(ctx, f, cmdSetRuntimeConfig, cfg)
}

type SetModelsParams struct {
	Models []string `json:"models"`
}

func (f *Facade) SetModels(ctx context.Context, models []string) error {
	return callVoid(ctx, f, cmdSetModels, SetModelsParams{Models: models})
}

type SetSpecializedModelsParams struct {
	SessionID string            `json:"sessionId"`
	Models    map[string]string `json:"models"`
}

func (f *Facade) SetSpecializedModels(ctx context.Context, params SetSpecializedModelsParams) error {
	return callVoid(ctx, f, cmdSetSpecializedModels, params)
}

type MCPServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

func (f *Facade) SetMCPServers(ctx context.Context, servers []MCPServer) error {
	return callVoid(ctx, f, cmdSetMCPServers, struct {
		Servers []MCPServer `json:"servers"`
	}{Servers: servers})
}

func (f *Facade) SetSkills(ctx context.Context, skills []string) error {
	return callVoid(ctx, f, cmdSetSkills, struct {
		Skills []string `json:"skills"`
	}{Skills: skills})
}
