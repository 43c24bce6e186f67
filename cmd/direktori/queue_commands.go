package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"direktori/internal/queue"
	"direktori/internal/workflow"
)

// resetFileColumn is the header of the one-column key list accepted by
// "queue reset --file".
const resetFileColumn = "IDSBR"

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueSetStatusCommand(ctx))
	queueCmd.AddCommand(newQueueReclaimCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show item counts per automation status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					out := make(map[string]int, len(stats))
					for _, status := range queue.AllStatuses() {
						out[string(status)] = stats[status]
					}
					return writeJSON(cmd, out)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(statusColumns, buildQueueStatusRows(stats)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		worker   string
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{AssignedTo: strings.TrimSpace(worker), Limit: limit}
			for _, raw := range statuses {
				status, err := queue.ParseStatus(raw)
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, status)
			}

			return ctx.withStore(cmd, func(store queue.Store) error {
				items, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					out := make([]itemJSON, 0, len(items))
					for _, item := range items {
						out = append(out, toItemJSON(item))
					}
					return writeJSON(cmd, out)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching items")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(listColumns, buildQueueListRows(items)))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&worker, "worker", "", "Filter by assigned worker identity")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id|idsbr>",
		Short: "Show one queue item with its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store queue.Store) error {
				item, err := lookupItem(cmd, store, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, toItemJSON(item))
				}
				renderItem(cmd.OutOrStdout(), item)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "reset [idsbr...]",
		Short: "Return items to new by business key",
		Long: "Sets automation_status to new for every listed business key, whatever its\n" +
			"current status. Keys come from arguments or from a CSV file whose header\n" +
			"row contains an IDSBR column.",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := append([]string(nil), args...)
			if strings.TrimSpace(file) != "" {
				fromFile, err := readResetFile(file)
				if err != nil {
					return err
				}
				keys = append(keys, fromFile...)
			}
			keys = queue.NormalizeKeys(keys)
			if len(keys) == 0 {
				return errors.New("no business keys given (pass keys as arguments or --file)")
			}

			return ctx.withStore(cmd, func(store queue.Store) error {
				n, err := store.ResetToNew(cmd.Context(), keys)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d of %d keys to new\n", n, len(keys))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file with an IDSBR column")
	return cmd
}

func readResetFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open key file: %w", err)
	}
	defer f.Close()
	return parseResetCSV(f)
}

func parseResetCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("key file is empty")
		}
		return nil, fmt.Errorf("read key file header: %w", err)
	}
	column := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), resetFileColumn) {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, fmt.Errorf("key file has no %s column", resetFileColumn)
	}

	var keys []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		if column < len(record) {
			keys = append(keys, record[column])
		}
	}
	return keys, nil
}

func newQueueSetStatusCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "set-status <id|idsbr> <status>",
		Short: "Overwrite the automation status of one item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := queue.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(store queue.Store) error {
				item, err := lookupItem(cmd, store, args[0])
				if err != nil {
					return err
				}
				if !force && !queue.CanTransition(item.Status, target) && item.Status != target {
					return fmt.Errorf("%s -> %s is not a worker transition (use --force to overwrite)", item.Status, target)
				}
				if err := store.SetStatus(cmd.Context(), item.ID, target); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d (%s): %s -> %s\n", item.ID, item.BusinessKey, item.Status, target)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Allow any status change")
	return cmd
}

func newQueueReclaimCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Return stale in_progress claims to new",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(store queue.Store) error {
				sweeper := workflow.NewStaleSweeper(store, olderThan, logger, nil)
				n, err := sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d stale claims\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "Reclaim claims with no update for this long")
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var (
		fields []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "add <idsbr>",
		Short: "Insert one item in status new",
		Long: "Inserts a work item. Payload attributes are given as column=value pairs\n" +
			"using the registry column names, e.g. --field nama_usaha=\"Warung Kopi\".",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayloadFields(fields)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(store queue.Store) error {
				item, err := store.Insert(cmd.Context(), args[0], payload)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, toItemJSON(item))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added item %d (%s)\n", item.ID, item.BusinessKey)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Payload attribute as column=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func parsePayloadFields(pairs []string) (queue.Payload, error) {
	var payload queue.Payload
	fields := payload.Fields()
	index := make(map[string]int, len(queue.PayloadColumns))
	for i, column := range queue.PayloadColumns {
		index[column] = i
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return payload, fmt.Errorf("field %q must be column=value", pair)
		}
		i, known := index[strings.ToLower(strings.TrimSpace(name))]
		if !known {
			return payload, fmt.Errorf("unknown payload column %q", name)
		}
		*fields[i] = strings.TrimSpace(value)
	}
	return payload, nil
}

// lookupItem resolves a numeric id first, then a business key.
func lookupItem(cmd *cobra.Command, store queue.Store, ref string) (*queue.WorkItem, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		item, err := store.GetByID(cmd.Context(), id)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}
	item, err := store.GetByBusinessKey(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%s: %w", ref, queue.ErrNotFound)
	}
	return item, nil
}
