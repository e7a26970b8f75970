package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nexfield-ai/paygate/task"
)

// TaskProtocolVersion is the envelope version of the structured task
// protocol.
const TaskProtocolVersion = "2.0"

// Reserved task protocol error codes.
const (
	CodeTaskNotFound      = -32001
	CodeTaskNotCancelable = -32002
	CodeParse             = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
)

// RPCRequest is the task protocol request envelope.
type RPCRequest struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params"`
	ID              interface{}     `json:"id"`
}

// RPCError is a structured protocol error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCResponse is the task protocol response envelope.
type RPCResponse struct {
	ProtocolVersion string      `json:"protocolVersion"`
	Result          interface{} `json:"result,omitempty"`
	Error           *RPCError   `json:"error,omitempty"`
	ID              interface{} `json:"id"`
}

// messageSendParams carries a user message, optionally continuing an
// existing task's conversation.
type messageSendParams struct {
	Message struct {
		ContextID string `json:"contextId"`
		Parts     []struct {
			Kind string `json:"kind"`
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"message"`
}

type taskIDParams struct {
	ID string `json:"id"`
}

func rpcError(id interface{}, code int, format string, args ...interface{}) RPCResponse {
	return RPCResponse{
		ProtocolVersion: TaskProtocolVersion,
		Error:           &RPCError{Code: code, Message: fmt.Sprintf(format, args...)},
		ID:              id,
	}
}

func rpcResult(id interface{}, result interface{}) RPCResponse {
	return RPCResponse{
		ProtocolVersion: TaskProtocolVersion,
		Result:          result,
		ID:              id,
	}
}

// HandleRPC dispatches one task protocol request. Every failure maps to a
// reserved code; task state is never mutated on a failed lookup.
func (s *Service) HandleRPC(ctx context.Context, req RPCRequest, payer string) RPCResponse {
	if req.ProtocolVersion != TaskProtocolVersion {
		return rpcError(req.ID, CodeInvalidRequest,
			"unsupported protocol version: %q", req.ProtocolVersion)
	}

	switch req.Method {
	case "message/send":
		return s.rpcMessageSend(ctx, req, payer)
	case "tasks/get":
		return s.rpcTaskGet(req)
	case "tasks/cancel":
		return s.rpcTaskCancel(req)
	default:
		return rpcError(req.ID, CodeMethodNotFound, "method not found: %s", req.Method)
	}
}

func (s *Service) rpcMessageSend(ctx context.Context, req RPCRequest, payer string) RPCResponse {
	var params messageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, CodeInvalidParams, "malformed params: %v", err)
	}

	var content string
	for _, part := range params.Message.Parts {
		if part.Kind == "text" {
			content += part.Text
		}
	}

	result, err := s.Ask(ctx, content, params.Message.ContextID, payer)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			return rpcError(req.ID, CodeInvalidParams, "%v", err)
		default:
			return rpcError(req.ID, CodeInternal, "%v", err)
		}
	}

	t, err := s.tasks.Get(result.TaskID)
	if err != nil {
		return rpcError(req.ID, CodeInternal, "%v", err)
	}
	return rpcResult(req.ID, t)
}

func (s *Service) rpcTaskGet(req RPCRequest) RPCResponse {
	var params taskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		return rpcError(req.ID, CodeInvalidParams, "task id is required")
	}

	t, err := s.tasks.Get(params.ID)
	if err != nil {
		return rpcError(req.ID, CodeTaskNotFound, "no task with id %s", params.ID)
	}
	return rpcResult(req.ID, t)
}

func (s *Service) rpcTaskCancel(req RPCRequest) RPCResponse {
	var params taskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		return rpcError(req.ID, CodeInvalidParams, "task id is required")
	}

	t, err := s.tasks.Cancel(params.ID)
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return rpcError(req.ID, CodeTaskNotFound, "no task with id %s", params.ID)
	case errors.Is(err, task.ErrTaskTerminated):
		return rpcError(req.ID, CodeTaskNotCancelable, "task %s already terminated", params.ID)
	case err != nil:
		return rpcError(req.ID, CodeInternal, "%v", err)
	}
	return rpcResult(req.ID, t)
}
