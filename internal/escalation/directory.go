package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docflow/internal/config"
)

// Worker describes a directory record with its management chain.
type Worker struct {
	ID                 string
	Name               string
	ManagerID          string
	SecondaryManagerID string
	Contact            string
}

// ErrWorkerNotFound indicates the directory has no record for a worker id.
var ErrWorkerNotFound = errors.New("worker not found in directory")

// Directory resolves worker identities to their management chain. The real
// worker directory is an external service; deployments without one use the
// config-backed StaticDirectory.
type Directory interface {
	Lookup(ctx context.Context, workerID string) (Worker, error)
}

// StaticDirectory serves lookups from config-declared entries.
type StaticDirectory struct {
	workers map[string]Worker
}

// NewStaticDirectory builds a directory from config entries.
func NewStaticDirectory(entries []config.DirectoryEntry) *StaticDirectory {
	workers := make(map[string]Worker, len(entries))
	for _, entry := range entries {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			continue
		}
		workers[id] = Worker{
			ID:                 id,
			Name:               entry.Name,
			ManagerID:          strings.TrimSpace(entry.ManagerID),
			SecondaryManagerID: strings.TrimSpace(entry.SecondaryManagerID),
			Contact:            entry.Contact,
		}
	}
	return &StaticDirectory{workers: workers}
}

func (d *StaticDirectory) Lookup(_ context.Context, workerID string) (Worker, error) {
	worker, ok := d.workers[strings.TrimSpace(workerID)]
	if !ok {
		return Worker{}, fmt.Errorf("worker %q: %w", workerID, ErrWorkerNotFound)
	}
	return worker, nil
}
