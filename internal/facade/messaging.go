package facade

import "context"

// QueuedMessage is one entry in a session's outbound message queue.
type QueuedMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type SendMessageParams struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

func (f *Facade) SendMessage(ctx context.Context, params SendMessageParams) error {
	return callVoid(ctx, f, cmdSendMessage, params)
}

func (f *Facade) StopGeneration(ctx context.Context, sessionID string) error {
	return callVoid(ctx, f, cmdStopGeneration, sessionIDParams{SessionID: sessionID})
}

type RespondPermissionParams struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
}

func (f *Facade) RespondPermission(ctx context.Context, params RespondPermissionParams) error {
	return callVoid(ctx, f, cmdRespondPermission, params)
}

type RespondQuestionParams struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Answer    string `json:"answer"`
}

func (f *Facade) RespondQuestion(ctx context.Context, params RespondQuestionParams) error {
	return callVoid(ctx, f, cmdRespondQuestion, params)
}

type SetApprovalModeParams struct {
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
}

func (f *Facade) SetApprovalMode(ctx context.Context, params SetApprovalModeParams) error {
	return callVoid(ctx, f, cmdSetApprovalMode, params)
}

type SetExecutionModeParams struct {
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
}

func (f *Facade) SetExecutionMode(ctx context.Context, params SetExecutionModeParams) error {
	return callVoid(ctx, f, cmdSetExecutionMode, params)
}

func (f *Facade) GetQueue(ctx context.Context, sessionID string) ([]QueuedMessage, error) {
	return call[[]QueuedMessage](ctx, f, cmdGetQueue, sessionIDParams{SessionID: sessionID})
}

type queueItemParams struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
}

func (f *Facade) RemoveFromQueue(ctx context.Context, sessionID, messageID string) error {
	return callVoid(ctx, f, cmdRemoveFromQueue, queueItemParams{SessionID: sessionID, MessageID: messageID})
}

type ReorderQueueParams struct {
	SessionID  string   `json:"sessionId"`
	MessageIDs []string `json:"messageIds"`
}

func (f *Facade) ReorderQueue(ctx context.Context, params ReorderQueueParams) error {
	return callVoid(ctx, f, cmdReorderQueue, params)
}

func (f *Facade) SendQueuedImmediately(ctx context.Context, sessionID, messageID string) error {
	return callVoid(ctx, f, cmdSendQueuedImmediately, queueItemParams{SessionID: sessionID, MessageID: messageID})
}

type EditQueuedMessageParams struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

func (f *Facade) EditQueuedMessage(ctx context.Context, params EditQueuedMessageParams) error {
	return callVoid(ctx, f, cmdEditQueuedMessage, params)
}
