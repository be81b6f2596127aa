package facade

import "context"

// Connector is a configured external integration the worker can reach
// through (GitHub, Slack, etc.) — the connector's own protocol is an
// opaque collaborator to this module (§1 Non-goals); only its transport
// shape is specified.
type Connector struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

func (f *Facade) ConnectorList(ctx context.Context) ([]Connector, error) {
	return call[[]Connector](ctx, f, cmdConnectorList, struct{}{})
}

func (f *Facade) ConnectorEnable(ctx context.Context, id string) error {
	return callVoid(ctx, f, cmdConnectorEnable, struct {
		ID string `json:"id"`
	}{ID: id})
}

type Workflow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (f *Facade) WorkflowList(ctx context.Context) ([]Workflow, error) {
	return call[[]Workflow](ctx, f, cmdWorkflowList, struct{}{})
}

type WorkflowRunParams struct {
	WorkflowID string         `json:"workflowId"`
	Input      map[string]any `json:"input,omitempty"`
}

func (f *Facade) WorkflowRun(ctx context.Context, params WorkflowRunParams) error {
	return callVoid(ctx, f, cmdWorkflowRun, params)
}

type CronJob struct {
	ID       string `json:"id"`
	Schedule string `json:"schedule"`
}

func (f *Facade) CronList(ctx context.Context) ([]CronJob, error) {
	return call[[]CronJob](ctx, f, cmdCronList, struct{}{})
}

type CronScheduleParams struct {
	Schedule string `json:"schedule"`
	Command  string `json:"command"`
}

func (f *Facade) CronSchedule(ctx context.Context, params CronScheduleParams) error {
	return callVoid(ctx, f, cmdCronSchedule, params)
}

func (f *Facade) PolicyGet(ctx context.Context) (map[string]any, error) {
	return call[map[string]any](ctx, f, cmdPolicyGet, struct{}{})
}

func (f *Facade) PolicySet(ctx context.Context, policy map[string]any) error {
	return callVoid(ctx, f, cmdPolicySet, policy)
}

func (f *Facade) Heartbeat(ctx context.Context) error {
	return callVoid(ctx, f, cmdHeartbeat, struct{}{})
}

type Integration struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

func (f *Facade) IntegrationList(ctx context.Context) ([]Integration, error) {
	return call[[]Integration](ctx, f, cmdIntegrationList, struct{}{})
}
