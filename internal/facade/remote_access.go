package facade

import "context"

// RemoteAccessStatus is the typed result shape original_source's
// commands/remote_access.rs exposes for the supervisor-managed remote
// tunnel process. The tunnel protocol itself is an opaque collaborator
// (§1 Non-goals "connector ... logic"); only this wire shape is
// specified here.
type RemoteAccessStatus struct {
	Enabled bool    `json:"enabled"`
	URL     *string `json:"url,omitempty"`
	Error   *string `json:"error,omitempty"`
}

func (f *Facade) RemoteAccessEnable(ctx context.Context) (RemoteAccessStatus, error) {
	return call[RemoteAccessStatus](ctx, f, cmdRemoteAccessEnable, struct{}{})
}

func (f *Facade) RemoteAccessDisable(ctx context.Context) (RemoteAccessStatus, error) {
	return call[RemoteAccessStatus](ctx, f, cmdRemoteAccessDisable, struct{}{})
}

func (f *Facade) RemoteAccessStatus(ctx context.Context) (RemoteAccessStatus, error) {
	return call[RemoteAccessStatus](ctx, f, cmdRemoteAccessStatus, struct{}{})
}
