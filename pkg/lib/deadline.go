package lib

import (
	"context"
)

// GetDeadline returns the persisted deadline of a staged task.
//
// Returns [ErrNotFound] if the task has no deadline yet.
func (c *Client) GetDeadline(ctx context.Context, key string) (*Deadline, error) {
	info, err := c.deadlines.Info(ctx, key)
	if err != nil {
		return nil, mapError(err)
	}

	return &Deadline{
		Key:       info.Key,
		Deadline:  info.Deadline,
		Remaining: info.Remaining,
		Expired:   info.Expired,
	}, nil
}

// ClearDeadline removes the persisted deadline of a staged task so the next
// stage starts a new time budget.
func (c *Client) ClearDeadline(ctx context.Context, key string) error {
	return mapError(c.deadlines.Clear(ctx, key))
}
