package facade

import "context"

// TransportDiagnostics is the result of get_transport_diagnostics,
// resolving §9 Open Question 2: discarded lines are observable but
// never fatal.
type TransportDiagnostics struct {
	Mode           string `json:"mode"`
	DiscardedLines uint64 `json:"discardedLines"`
}

// GetTransportDiagnostics reports locally-observed transport health; it
// does not round-trip to the worker, since the discarded-line count is
// this process's own reader-task state.
func (f *Facade) GetTransportDiagnostics(ctx context.Context) (TransportDiagnostics, error) {
	if err := f.ensureStarted(ctx); err != nil {
		return TransportDiagnostics{}, err
	}
	mux := f.sup.Multiplexer()
	return TransportDiagnostics{
		Mode:           mux.Mode().String(),
		DiscardedLines: mux.DiscardedLines(),
	}, nil
}
