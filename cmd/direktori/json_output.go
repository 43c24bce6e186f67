package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"direktori/internal/queue"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type itemJSON struct {
	ID           int64         `json:"id"`
	BusinessKey  string        `json:"idsbr"`
	Status       queue.Status  `json:"automation_status"`
	AssignedTo   string        `json:"assigned_to,omitempty"`
	AttemptCount int           `json:"attempt_count"`
	FirstTakenAt *time.Time    `json:"first_taken_at,omitempty"`
	LastUpdated  time.Time     `json:"last_updated"`
	Error        string        `json:"error,omitempty"`
	Payload      queue.Payload `json:"payload"`
}

func toItemJSON(item *queue.WorkItem) itemJSON {
	return itemJSON{
		ID:           item.ID,
		BusinessKey:  item.BusinessKey,
		Status:       item.Status,
		AssignedTo:   item.AssignedTo,
		AttemptCount: item.AttemptCount,
		FirstTakenAt: item.FirstTakenAt,
		LastUpdated:  item.LastUpdated,
		Error:        item.Error,
		Payload:      item.Payload,
	}
}
