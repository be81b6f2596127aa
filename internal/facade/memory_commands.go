package facade

import "context"

func (f *Facade) DeepMemoryGet(ctx context.Context, sessionID string) (map[string]any, error) {
	return call[map[string]any](ctx, f, cmdDeepMemoryGet, sessionIDParams{SessionID: sessionID})
}

type DeepMemorySetParams struct {
	SessionID string         `json:"sessionId"`
	Entries   map[string]any `json:"entries"`
}

func (f *Facade) DeepMemorySet(ctx context.Context, params DeepMemorySetParams) error {
	return callVoid(ctx, f, cmdDeepMemorySet, params)
}

// SlashCommand describes one discoverable command the worker can run
// (installed skills/commands, per the "Memory & commands" catalog
// family).
type SlashCommand struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (f *Facade) DiscoverCommands(ctx context.Context) ([]SlashCommand, error) {
	return call[[]SlashCommand](ctx, f, cmdDiscoverCommands, struct{}{})
}

type InstallCommandParams struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

func (f *Facade) InstallCommand(ctx context.Context, params InstallCommandParams) error {
	return callVoid(ctx, f, cmdInstallCommand, params)
}

func (f *Facade) UninstallCommand(ctx context.Context, name string) error {
	return callVoid(ctx, f, cmdUninstallCommand, struct {
		Name string `json:"name"`
	}{Name: name})
}

func (f *Facade) GetCommandContent(ctx context.Context, name string) (string, error) {
	result, err := call[struct {
		Content string `json:"content"`
	}](ctx, f, cmdGetCommandContent, struct {
		Name string `json:"name"`
	}{Name: name})
	return result.Content, err
}

type CreateCommandParams struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (f *Facade) CreateCommand(ctx context.Context, params CreateCommandParams) error {
	return callVoid(ctx, f, cmdCreateCommand, params)
}

// Subagent describes a configured specialized agent the worker can
// dispatch sub-tasks to.
type Subagent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (f *Facade) SubagentList(ctx context.Context) ([]Subagent, error) {
	return call[[]Subagent](ctx, f, cmdSubagentList, struct{}{})
}

type SubagentCreateParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

func (f *Facade) SubagentCreate(ctx context.Context, params SubagentCreateParams) error {
	return callVoid(ctx, f, cmdSubagentCreate, params)
}
