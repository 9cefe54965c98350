package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
)

const (
	// dateFolderLayout names the per day snapshot folders
	dateFolderLayout = "2006_01_02"
	// fileLayout is the time part of snapshot names, milliseconds are
	// appended
	fileLayout = "20060102_150405"
)

// Snapshots saves raw and annotated frames every Interval frames into
// per day folders
type Snapshots struct {
	// PicturesDir receives the raw camera frames
	PicturesDir string
	// DebugDir receives the annotated frames
	DebugDir string
	// Interval between saved frames, 1 saves every frame
	Interval int
	// now returns the current time
	now func() time.Time
}

// NewSnapshots returns a snapshot writer
func NewSnapshots(picturesDir, debugDir string, interval int) *Snapshots {

	if interval < 1 {
		interval = 1
	}

	return &Snapshots{
		PicturesDir: picturesDir,
		DebugDir:    debugDir,
		Interval:    interval,
		now:         time.Now,
	}
}

// Due reports whether frame number n should be saved
func (s *Snapshots) Due(n uint64) bool {
	return n%uint64(s.Interval) == 0
}

// Timestamp returns the file name stem for t, YYYYMMDD_HHMMSS_MS
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%s_%03d", t.Format(fileLayout), t.Nanosecond()/int(time.Millisecond))
}

// dateFolder creates and returns the folder of t under base
func dateFolder(base string, t time.Time) (string, error) {

	dir := filepath.Join(base, t.Format(dateFolderLayout))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot folder: %w", err)
	}

	return dir, nil
}

// Save writes raw to the pictures folder and a copy passed through
// annotate to the debug folder.  A nil annotate saves the raw frame to
// both.  It returns the two paths written.
func (s *Snapshots) Save(raw gocv.Mat, annotate func(img *gocv.Mat)) (string, string, error) {

	t := s.now()
	stem := Timestamp(t)

	picDir, err := dateFolder(s.PicturesDir, t)

	if err != nil {
		return "", "", err
	}

	dbgDir, err := dateFolder(s.DebugDir, t)

	if err != nil {
		return "", "", err
	}

	picPath := filepath.Join(picDir, stem+".png")
	dbgPath := filepath.Join(dbgDir, stem+"_debug.png")

	if !gocv.IMWrite(picPath, raw) {
		return "", "", fmt.Errorf("failed to write %s", picPath)
	}

	out := raw

	if annotate != nil {
		out = raw.Clone()
		defer out.Close()
		annotate(&out)
	}

	if !gocv.IMWrite(dbgPath, out) {
		return picPath, "", fmt.Errorf("failed to write %s", dbgPath)
	}

	return picPath, dbgPath, nil
}
