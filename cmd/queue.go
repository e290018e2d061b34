package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/desertthunder/tunedl/internal/formatter"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/repositories"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/urfave/cli/v3"
)

// QueueList prints every saved work item.
func (r *Runner) QueueList(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	items, err := r.loadItems(ctx, store)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(items, true)
	}
	if len(items) == 0 {
		r.writePlain("Queue is empty\n")
		return nil
	}
	r.writePlain("%s\n", formatter.QueueTable(items))
	return nil
}

// QueueResume downloads the saved items that never finished or finished with an error.
func (r *Runner) QueueResume(ctx context.Context, cmd *cli.Command) error {
	opts, err := r.runOptions(cmd)
	if err != nil {
		return err
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	items, err := r.loadItems(ctx, store)
	store.Close()
	if err != nil {
		return err
	}

	var pending []models.Track
	for _, it := range pendingItems(items) {
		t := it.Track
		t.State, t.Result, t.LocalPath = models.StatePending, nil, ""
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		r.writePlain("Nothing to resume\n")
		return nil
	}

	catalogs, err := r.services()
	if err != nil {
		return err
	}
	r.writePlain("Resuming %d of %d saved items\n\n", len(pending), len(items))
	return r.runDownload(ctx, catalogs, models.NewCollection(pending...), opts, cmd.String("report"))
}

// QueueClear removes every saved work item.
func (r *Runner) QueueClear(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Clear(ctx)
	if err != nil {
		return err
	}
	r.writePlain("Removed %d items\n", n)
	return nil
}

// QueueRuns prints the run history.
func (r *Runner) QueueRuns(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := repositories.NewRunStore(store.DB()).List(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		r.writePlain("No runs recorded\n")
		return nil
	}
	r.writePlain("%s\n", formatter.RunsTable(runs))
	return nil
}

// loadItems decodes every queue entry, skipping ones that no longer parse, ordered by save time then index.
func (r *Runner) loadItems(ctx context.Context, store *repositories.QueueStore) ([]models.WorkItem, error) {
	entries, err := store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	type saved struct {
		item  models.WorkItem
		entry repositories.Entry
	}
	list := make([]saved, 0, len(entries))
	for key, e := range entries {
		var item models.WorkItem
		if err := json.Unmarshal([]byte(e.Payload), &item); err != nil {
			r.logger.Warn("skipping unreadable queue entry", "key", key, "error", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
			continue
		}
		list = append(list, saved{item, e})
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
			return a.entry.CreatedAt.Before(b.entry.CreatedAt)
		}
		if a.item.Index != b.item.Index {
			return a.item.Index < b.item.Index
		}
		return a.entry.Key < b.entry.Key
	})

	items := make([]models.WorkItem, len(list))
	for i, s := range list {
		items[i] = s.item
	}
	return items, nil
}

func pendingItems(items []models.WorkItem) []models.WorkItem {
	var out []models.WorkItem
	for _, it := range items {
		if it.Track.State != models.StateDone || it.Track.Result == nil || *it.Track.Result == models.Error {
			out = append(out, it)
		}
	}
	return out
}
