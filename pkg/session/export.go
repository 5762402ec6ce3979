package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumora-health/breathsense/pkg/kv"
	"github.com/lumora-health/breathsense/pkg/storage"
)

// ExportPath returns the archive path used for a session id.
func ExportPath(id string) string {
	return "sessions/" + id + ".jsonl"
}

// exportLine is one line of the JSON-lines archive.
type exportLine struct {
	Kind string `json:"kind"` // "meta", "event" or "rate"
	Data any    `json:"data"`
}

// Export writes one session as a JSON-lines archive to the file store:
// the metadata line first, then events and rate measurements in recording
// order. The archive path is ExportPath(id).
func Export(ctx context.Context, store kv.Store, files storage.FileStore, id string) error {
	meta, err := Get(ctx, store, id)
	if err != nil {
		return err
	}
	events, err := Events(ctx, store, id)
	if err != nil {
		return err
	}
	rates, err := Rates(ctx, store, id)
	if err != nil {
		return err
	}

	w, err := files.Write(ctx, ExportPath(id))
	if err != nil {
		return fmt.Errorf("session: open archive: %w", err)
	}
	enc := json.NewEncoder(w)

	write := func(kind string, data any) error {
		return enc.Encode(exportLine{Kind: kind, Data: data})
	}
	err = write("meta", meta)
	for _, ev := range events {
		if err != nil {
			break
		}
		err = write("event", ev)
	}
	for _, m := range rates {
		if err != nil {
			break
		}
		err = write("rate", m)
	}
	if err != nil {
		w.Close()
		return fmt.Errorf("session: write archive: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("session: close archive: %w", err)
	}
	return nil
}
