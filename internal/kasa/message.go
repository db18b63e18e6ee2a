package kasa

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

const (
	// ModuleSystem is the module answering sysinfo and relay commands.
	ModuleSystem = "system"
	// MethodGetSysInfo returns the device description, including strip children.
	MethodGetSysInfo = "get_sysinfo"
	// MethodSetRelayState switches the relay of a plug or of selected children.
	MethodSetRelayState = "set_relay_state"

	// contextKey scopes a command to specific children of a strip.
	contextKey = "context"
	// childIDsKey lists the targeted children inside contextKey.
	childIDsKey = "child_ids"
)

// errMissingResult is returned when a reply lacks the requested module/method.
var errMissingResult = errors.New("reply has no result for request")

// ResponseError is a failure reported by the device through err_code.
type ResponseError struct {
	// Module is the request module, e.g. "system".
	Module string
	// Method is the request method, e.g. "set_relay_state".
	Method string
	// Code is the non-zero err_code value.
	Code int
	// Message is err_msg when the device provides one.
	Message string
}

// Error implements error.
func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s.%s failed with code %d", e.Module, e.Method, e.Code)
	}

	return fmt.Sprintf("%s.%s failed with code %d: %s", e.Module, e.Method, e.Code, e.Message)
}

// Request is a single-method command, optionally scoped to strip children.
type Request map[string]any

// NewRequest builds {"<module>":{"<method>":params}} with an optional child context.
func NewRequest(module, method string, params any, childIDs ...string) Request {
	if params == nil {
		params = struct{}{}
	}

	req := Request{module: map[string]any{method: params}}
	if len(childIDs) > 0 {
		req[contextKey] = map[string]any{childIDsKey: childIDs}
	}

	return req
}

// Target returns the module and method of a request built by NewRequest.
func (r Request) Target() (module, method string) {
	for key, value := range r {
		if key == contextKey {
			continue
		}

		methods, ok := value.(map[string]any)
		if !ok {
			continue
		}

		for name := range methods {
			return key, name
		}
	}

	return "", ""
}

// ChildIDs returns the child context of the request, if any.
func (r Request) ChildIDs() []string {
	var scope struct {
		ChildIDs []string `json:"child_ids"`
	}

	if err := decodeMap(r[contextKey], &scope); err != nil {
		return nil
	}

	return scope.ChildIDs
}

// Params decodes the parameters of the request method into out.
func (r Request) Params(out any) error {
	module, method := r.Target()

	methods, _ := r[module].(map[string]any)

	return decodeMap(methods[method], out)
}

// ParseRequest decodes a plain JSON command. It is used by the fake devices in tests.
func ParseRequest(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	return req, nil
}

// status is the err_code/err_msg pair carried by every result.
type status struct {
	ErrCode int    `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// decodeResponse extracts module.method from a reply, converts a non-zero
// err_code into *ResponseError and decodes the result into out when non-nil.
func decodeResponse(payload []byte, module, method string, out any) error {
	var envelope map[string]any
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}

	methods, ok := envelope[module].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s.%s", errMissingResult, module, method)
	}

	result, ok := methods[method]
	if !ok {
		// Unsupported modules answer with a module level err_code.
		if err := checkStatus(methods, module, method); err != nil {
			return err
		}

		return fmt.Errorf("%w: %s.%s", errMissingResult, module, method)
	}

	if err := checkStatus(result, module, method); err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	if err := decodeMap(result, out); err != nil {
		return fmt.Errorf("decode %s.%s: %w", module, method, err)
	}

	return nil
}

// checkStatus turns a non-zero err_code into *ResponseError.
func checkStatus(result any, module, method string) error {
	var st status
	if err := decodeMap(result, &st); err != nil {
		return fmt.Errorf("decode %s.%s status: %w", module, method, err)
	}

	if st.ErrCode == 0 {
		return nil
	}

	return &ResponseError{
		Module:  module,
		Method:  method,
		Code:    st.ErrCode,
		Message: st.ErrMsg,
	}
}

// decodeMap maps loosely typed JSON values onto structs using their json tags.
func decodeMap(input, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
