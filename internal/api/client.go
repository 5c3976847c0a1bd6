package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// Call sends one request to the socket at path and decodes the response
// data into out, which may be nil.
func Call(ctx context.Context, path, action string, data any, out any) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}

	req := Request{Action: action}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", action, err)
		}
		req.Data = raw
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("send %s request: %w", action, err)
	}

	var resp rawResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("read %s response: %w", action, err)
	}
	if !resp.Ok {
		return errors.New(resp.Err)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	return nil
}

// Ping checks that a shell is serving on path.
func Ping(ctx context.Context, path string) (PingResponse, error) {
	var resp PingResponse
	err := Call(ctx, path, ActionPing, nil, &resp)
	return resp, err
}

// List fetches the shell's jobs, optionally only those in state.
func List(ctx context.Context, path, state string) (ListResponse, error) {
	var resp ListResponse
	var data any
	if state != "" {
		data = ListRequest{State: state}
	}
	err := Call(ctx, path, ActionList, data, &resp)
	return resp, err
}
