package importer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appdatasets "github.com/bryanwahyu/invoice-audit/internal/application/datasets"
	"github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
	"github.com/bryanwahyu/invoice-audit/internal/logger"
)

type fakeUploader struct {
	got  map[string]string
	errs map[string]error
}

func (u *fakeUploader) Upload(_ context.Context, cmd appdatasets.UploadCommand) (*datasets.Dataset, error) {
	if err := u.errs[cmd.Filename]; err != nil {
		return nil, err
	}
	b, err := io.ReadAll(cmd.Body)
	if err != nil {
		return nil, err
	}
	u.got[cmd.TenantID+"/"+cmd.Filename] = string(b)
	return &datasets.Dataset{ID: datasets.DatasetID("id-" + cmd.Filename)}, nil
}

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b.csv", "b")
	write(t, dir, "a.XLSX", "a")
	write(t, dir, "bad.csv", "bad")
	write(t, dir, "flaky.csv", "flaky")
	write(t, dir, "notes.txt", "ignored")
	write(t, dir, ".hidden.csv", "ignored")

	up := &fakeUploader{
		got: map[string]string{},
		errs: map[string]error{
			"bad.csv":   ierr.Validationf("missing required columns: doc_no"),
			"flaky.csv": ierr.WrapStorage(errors.New("connection reset"), "uploading"),
		},
	}
	im := &Importer{Dir: dir, Tenant: "acme", Uploader: up, Log: logger.NewNop()}

	res, err := im.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []datasets.DatasetID{"id-a.XLSX", "id-b.csv"}, res.Imported)
	assert.Equal(t, []string{"bad.csv"}, res.Rejected)
	assert.Equal(t, []string{"flaky.csv"}, res.Failed)
	assert.Equal(t, "2 imported, 1 rejected, 1 failed", res.String())
	assert.Equal(t, "b", up.got["acme/b.csv"])

	assert.NoFileExists(t, filepath.Join(dir, "a.XLSX"))
	assert.NoFileExists(t, filepath.Join(dir, "b.csv"))
	assert.FileExists(t, filepath.Join(dir, RejectedDir, "bad.csv"))
	assert.FileExists(t, filepath.Join(dir, "flaky.csv"), "kept for retry")
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))

	// rejected dir is not swept again
	res, err = im.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Imported)
	assert.Equal(t, []string{"flaky.csv"}, res.Failed)
}

func TestSweepMissingDir(t *testing.T) {
	im := &Importer{Dir: filepath.Join(t.TempDir(), "nope"), Log: logger.NewNop()}
	_, err := im.Sweep(context.Background())
	assert.Error(t, err)
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("*/15 * * * *")
	require.NoError(t, err)
	from := time.Date(2024, 1, 1, 10, 7, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC), sched.Next(from))

	_, err = ParseSchedule("every minute")
	assert.True(t, errors.Is(err, ierr.ErrValidation))

	_, err = ParseSchedule("0 0 * * * *")
	assert.Error(t, err, "six fields are not accepted")
}

func TestRunStopsOnCancel(t *testing.T) {
	sched, err := ParseSchedule("0 0 1 1 *")
	require.NoError(t, err)
	im := &Importer{Dir: t.TempDir(), Log: logger.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		im.Run(ctx, sched)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
