package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	appdatasets "github.com/bryanwahyu/invoice-audit/internal/application/datasets"
	"github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
	"github.com/bryanwahyu/invoice-audit/internal/logger"
)

// RejectedDir is where files that fail validation are moved, relative to
// the inbox.
const RejectedDir = "rejected"

// Uploader stores one dataset file
type Uploader interface {
	Upload(ctx context.Context, cmd appdatasets.UploadCommand) (*datasets.Dataset, error)
}

// Importer periodically uploads the .csv/.xlsx files dropped into a
// directory.
type Importer struct {
	Dir      string
	Tenant   string
	Uploader Uploader
	Log      *logger.Logger
}

// Result tracks what one sweep did.
type Result struct {
	Imported []datasets.DatasetID
	Rejected []string
	Failed   []string
}

func (r Result) String() string {
	return fmt.Sprintf("%d imported, %d rejected, %d failed", len(r.Imported), len(r.Rejected), len(r.Failed))
}

// Sweep uploads every eligible file in the inbox once. Uploaded files are
// removed, invalid files go to RejectedDir, and files that hit a storage
// or database error stay for the next sweep.
func (im *Importer) Sweep(ctx context.Context) (Result, error) {
	var res Result
	entries, err := os.ReadDir(im.Dir)
	if err != nil {
		return res, errors.Wrapf(err, "reading inbox %s", im.Dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".csv", ".xlsx":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		path := filepath.Join(im.Dir, name)
		ds, err := im.importFile(ctx, path, name)
		switch {
		case err == nil:
			res.Imported = append(res.Imported, ds.ID)
			if rmErr := os.Remove(path); rmErr != nil {
				im.Log.Warnw("imported file not removed", "file", path, "error", rmErr)
			}
		case errors.Is(err, ierr.ErrValidation):
			res.Rejected = append(res.Rejected, name)
			im.Log.Warnw("import rejected", "file", name, "error", ierr.Message(err))
			if mvErr := im.reject(path, name); mvErr != nil {
				im.Log.Errorw("moving rejected file", "file", path, "error", mvErr)
			}
		default:
			res.Failed = append(res.Failed, name)
			im.Log.Errorw("import failed", "file", name, "error", err)
		}
	}
	return res, nil
}

func (im *Importer) importFile(ctx context.Context, path, name string) (*datasets.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return im.Uploader.Upload(ctx, appdatasets.UploadCommand{
		TenantID: im.Tenant,
		Filename: name,
		Body:     f,
	})
}

func (im *Importer) reject(path, name string) error {
	dir := filepath.Join(im.Dir, RejectedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, name))
}

// ParseSchedule accepts a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, ierr.WrapValidation(err, "invalid import schedule %q", expr)
	}
	return sched, nil
}

// Run sweeps on every tick of the schedule until ctx is cancelled.
func (im *Importer) Run(ctx context.Context, sched cron.Schedule) {
	for {
		now := time.Now()
		next := sched.Next(now)
		im.Log.Debugw("next import sweep", "at", next.Format(time.RFC3339), "in", next.Sub(now).Round(time.Second))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		res, err := im.Sweep(ctx)
		if err != nil {
			im.Log.Errorw("import sweep error", "error", err)
			continue
		}
		if len(res.Imported)+len(res.Rejected)+len(res.Failed) > 0 {
			im.Log.Infow("import sweep complete", "summary", res.String(), "dir", im.Dir, "tenant", im.Tenant)
		}
	}
}
